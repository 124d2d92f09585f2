/*
Package tracing provides lightweight request and navigation tracing.

Spans carry ULID-based trace and span IDs and are written to the structured
log when finished. There is no exporter; the log is the trace sink.

# Usage

	tracer := tracing.New("proxyview", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "navigate")
	span.SetTag("url", target)
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Propagation

X-Trace-ID and X-Span-ID request headers continue an existing trace. Both
are echoed on every response so the shell can correlate its diagnostics.
*/
package tracing
