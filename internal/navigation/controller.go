package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/proxyview/internal/providers/external"
	"github.com/GriffinCanCode/proxyview/internal/providers/fetch"
	"github.com/GriffinCanCode/proxyview/internal/render"
	"github.com/GriffinCanCode/proxyview/internal/rewriter"
	"github.com/GriffinCanCode/proxyview/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var (
	ErrEmptyURL   = errors.New("url cannot be empty")
	ErrSuperseded = errors.New("navigation superseded")
	ErrNoDocument = errors.New("nothing to open")
)

// LoadError reports a navigation that was handed to the external browser
type LoadError struct {
	URL    string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.URL, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Surface shows rewritten documents
type Surface interface {
	Display(html string) render.Handle
}

// Controller owns history and the current document. All exported methods
// are safe for concurrent use.
type Controller struct {
	fetcher fetch.Fetcher
	opener  external.Opener
	surface Surface
	rules   *Rules

	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	mu          sync.Mutex
	history     *History
	state       State
	url         string
	loaded      string
	title       string
	document    render.Handle
	status      string
	errMsg      string
	externalURL string
	seq         uint64
	gen         uint64
	cancel      context.CancelFunc

	subMu   sync.RWMutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures a Controller
type Option func(*Controller)

// WithRules sets the external pattern rules
func WithRules(rules *Rules) Option {
	return func(c *Controller) { c.rules = rules }
}

// WithMetrics records navigations, rewrites and external opens
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Controller) { c.metrics = metrics }
}

// WithTracer opens a span per navigation
func WithTracer(tracer *tracing.Tracer) Option {
	return func(c *Controller) { c.tracer = tracer }
}

// NewController creates an idle controller with empty history
func NewController(fetcher fetch.Fetcher, opener external.Opener, surface Surface, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		fetcher: fetcher,
		opener:  opener,
		surface: surface,
		logger:  logger,
		history: NewHistory(),
		state:   StateIdle,
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending finishes a navigation whose place in the command order is
// already fixed. It blocks until the navigation settles and must be called
// exactly once.
type Pending func() error

func settled(err error) Pending {
	return func() error { return err }
}

// Navigate loads raw after normalizing it. Failures that fall back to the
// external browser are returned as *LoadError for the caller's benefit; the
// controller has already handled them.
func (c *Controller) Navigate(ctx context.Context, raw string) error {
	return c.StartNavigate(ctx, raw)()
}

// Back re-loads the previous entry. It is a no-op at the first entry.
func (c *Controller) Back(ctx context.Context) error {
	return c.StartBack(ctx)()
}

// Forward re-loads the next entry. It is a no-op at the last entry.
func (c *Controller) Forward(ctx context.Context) error {
	return c.StartForward(ctx)()
}

// Reload re-loads the current entry, if any
func (c *Controller) Reload(ctx context.Context) error {
	return c.StartReload(ctx)()
}

// StartNavigate begins Navigate and returns before the fetch. Callers that
// issue commands concurrently call the Start methods in arrival order and
// wait on the results elsewhere.
func (c *Controller) StartNavigate(ctx context.Context, raw string) Pending {
	if strings.TrimSpace(raw) == "" {
		return settled(ErrEmptyURL)
	}
	target := Normalize(raw)

	if pattern, ok := c.rules.Match(target); ok {
		return func() error {
			c.handOff(ctx, target, pattern)
			return nil
		}
	}
	return c.start(ctx, KindNavigate, true, func() (string, bool) { return target, true })
}

// StartBack moves the history cursor back and begins loading the entry
func (c *Controller) StartBack(ctx context.Context) Pending {
	return c.start(ctx, KindBack, false, c.history.Back)
}

// StartForward moves the history cursor forward and begins loading the entry
func (c *Controller) StartForward(ctx context.Context) Pending {
	return c.start(ctx, KindForward, false, c.history.Forward)
}

// StartReload begins re-loading the current entry
func (c *Controller) StartReload(ctx context.Context) Pending {
	return c.start(ctx, KindReload, false, c.history.Current)
}

// OpenExternal hands the page being shown to the external browser. Unlike
// automatic fallbacks, opener errors are returned.
func (c *Controller) OpenExternal(ctx context.Context) error {
	c.mu.Lock()
	target := c.loaded
	c.mu.Unlock()
	if target == "" {
		return ErrNoDocument
	}

	err := c.opener.Open(ctx, target)
	c.recordOpen(err)
	return err
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for every published snapshot. fn runs on the
// goroutine that changed state and must not block.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	key := c.nextSub
	c.nextSub++
	c.subs[key] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, key)
			c.subMu.Unlock()
		})
	}
}

// Close cancels the navigation in flight
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// start picks the target and begins its generation in one critical
// section, so no completing navigation can record between the two
func (c *Controller) start(parent context.Context, kind Kind, record bool, pick func() (string, bool)) Pending {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	target, ok := pick()
	if !ok {
		c.mu.Unlock()
		cancel()
		return settled(nil)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.state = StateLoading
	c.url = target
	c.status = StatusLoading
	c.errMsg = ""
	c.externalURL = ""
	snap := c.changedLocked()
	c.mu.Unlock()

	c.publish(snap)
	return func() error {
		defer cancel()
		return c.load(ctx, gen, target, kind, record)
	}
}

// load runs the fetch-rewrite-display cycle for generation gen
func (c *Controller) load(ctx context.Context, gen uint64, target string, kind Kind, record bool) error {
	navID := id.NewNavigationID()
	timer := monitoring.NewTimer(c.metrics, string(kind))
	span, ctx := c.tracer.StartSpan(ctx, "navigation."+string(kind))
	span.SetTag("navigation_id", navID.String())
	span.SetTag("url", target)
	defer func() {
		span.Finish()
		c.tracer.Submit(span)
	}()

	log := c.logger.With(zap.String("navigation_id", navID.String()), zap.String("kind", string(kind)), zap.String("url", target))
	log.Debug("Navigation started")

	res, err := c.fetcher.Fetch(ctx, target)
	if err == nil {
		reason := unrenderable(res)
		if reason == "" {
			return c.complete(gen, target, res, record, timer, span, log)
		}
		err = &LoadError{URL: target, Reason: reason}
	}
	return c.fail(ctx, gen, target, err, timer, span, log)
}

func (c *Controller) complete(gen uint64, target string, res *fetch.Result, record bool, timer *monitoring.Timer, span *tracing.Span, log *zap.Logger) error {
	base := res.FinalURL
	if base == "" {
		base = target
	}

	start := time.Now()
	out := rewriter.Process(asHTML(res), base)
	c.metrics.RecordRewrite(time.Since(start), len(res.Content), len(out.HTML))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return c.superseded(timer, span, log)
	}
	handle := c.surface.Display(out.HTML)
	if record {
		c.history.Record(target)
	}
	c.cancel = nil
	c.state = StateLoaded
	c.url = target
	c.loaded = target
	c.title = out.Title
	c.document = handle
	c.status = StatusLoaded
	snap := c.changedLocked()
	c.mu.Unlock()

	c.publish(snap)
	d := timer.Stop(OutcomeLoaded)
	span.SetStatus(res.Status)
	log.Info("Page loaded",
		zap.Int("status", res.Status),
		zap.String("final_url", base),
		zap.String("document", handle.URL),
		zap.Bool("inline", handle.Inline),
		zap.Duration("duration", d),
	)
	return nil
}

func (c *Controller) fail(ctx context.Context, gen uint64, target string, cause error, timer *monitoring.Timer, span *tracing.Span, log *zap.Logger) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return c.superseded(timer, span, log)
	}
	c.cancel = nil

	// Same generation but canceled: the caller gave up, not a newer navigation
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.state = StateFailed
		c.status = StatusCanceled
		c.errMsg = ctxErr.Error()
		snap := c.changedLocked()
		c.mu.Unlock()

		c.publish(snap)
		timer.Stop(OutcomeCanceled)
		span.SetError(ctxErr)
		log.Info("Navigation canceled")
		return ctxErr
	}

	var loadErr *LoadError
	if !errors.As(cause, &loadErr) {
		loadErr = &LoadError{URL: target, Reason: cause.Error(), Err: cause}
	}
	c.state = StateFailed
	c.errMsg = loadErr.Reason
	c.status = statusError(loadErr.Reason)
	c.externalURL = target
	snap := c.changedLocked()
	c.mu.Unlock()

	c.publish(snap)
	timer.Stop(OutcomeFailed)
	span.SetError(loadErr)
	log.Warn("Navigation failed, opening externally", zap.String("reason", loadErr.Reason))

	c.openFallback(ctx, target, log)
	return loadErr
}

func (c *Controller) superseded(timer *monitoring.Timer, span *tracing.Span, log *zap.Logger) error {
	timer.Stop(OutcomeSuperseded)
	span.SetTag("outcome", OutcomeSuperseded)
	log.Debug("Navigation superseded")
	return ErrSuperseded
}

// handOff sends a pattern-matched URL straight to the external browser
// without touching the navigation in flight or history
func (c *Controller) handOff(ctx context.Context, target, pattern string) {
	timer := monitoring.NewTimer(c.metrics, string(KindExternal))
	log := c.logger.With(zap.String("url", target), zap.String("pattern", pattern))

	c.mu.Lock()
	c.externalURL = target
	c.status = statusHandedOff(target)
	snap := c.changedLocked()
	c.mu.Unlock()

	c.publish(snap)
	timer.Stop(OutcomeHandedOff)
	log.Info("URL matches external pattern")
	c.openFallback(ctx, target, log)
}

// openFallback opens target once and only logs failures
func (c *Controller) openFallback(ctx context.Context, target string, log *zap.Logger) {
	err := c.opener.Open(context.WithoutCancel(ctx), target)
	c.recordOpen(err)
	if err != nil {
		log.Error("External open failed", zap.Error(err))
	}
}

func (c *Controller) recordOpen(err error) {
	switch {
	case err == nil:
		c.metrics.RecordExternalOpen("opened")
	case errors.Is(err, external.ErrDisabled):
		c.metrics.RecordExternalOpen("disabled")
	default:
		c.metrics.RecordExternalOpen("error")
	}
}

// changedLocked bumps the sequence number and captures the new state
func (c *Controller) changedLocked() Snapshot {
	c.seq++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:          c.state,
		URL:            c.url,
		Title:          c.title,
		DocumentURL:    c.document.URL,
		LoadedURL:      c.loaded,
		Entries:        c.history.Entries(),
		Index:          c.history.Index(),
		BackEnabled:    c.history.CanBack(),
		ForwardEnabled: c.history.CanForward(),
		Status:         c.status,
		Error:          c.errMsg,
		ExternalURL:    c.externalURL,
		Seq:            c.seq,
	}
}

func (c *Controller) publish(snap Snapshot) {
	c.subMu.RLock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// unrenderable explains why res cannot be shown, or returns ""
func unrenderable(res *fetch.Result) string {
	switch {
	case res.Status >= 400:
		return fmt.Sprintf("HTTP %d", res.Status)
	case !fetch.IsRenderable(res.ContentType):
		return fmt.Sprintf("unsupported content type %s", res.ContentType)
	}
	return ""
}

// asHTML wraps plain text so it renders as preformatted text
func asHTML(res *fetch.Result) string {
	ct := strings.ToLower(res.ContentType)
	if ct == "" || strings.Contains(ct, "html") {
		return res.Content
	}
	return "<html><head></head><body><pre>" + html.EscapeString(res.Content) + "</pre></body></html>"
}
