/*
Package guard provides the isolation shim injected into every rewritten
document, and a goja harness for checking it.

# The shim

Script returns guard.js. Inside the sandboxed iframe it:

  - relays form submissions and link clicks to the shell as
    {type: "navigate", url} messages via parent.postMessage
  - turns XMLHttpRequest.send into a no-op and makes fetch reject
  - turns history.pushState and replaceState into no-ops
  - removes source map links and scripts, now and as they are added
  - swallows error and unhandledrejection events caused by the above

Form relay is GET only: fields become the query string and request bodies
are dropped.

Added elements reach the form and source map handlers through a single
MutationObserver that fans out to a subscriber list.

# Harness

Harness loads a stub DOM into a goja VM, installs the shim and captures
what it posts to its parent. Verify runs a fixed set of checks in fresh
harnesses; the server calls it at startup.

	if err := guard.Verify(ctx); err != nil {
		logger.Warn("Guard self-check failed", zap.Error(err))
	}
*/
package guard
