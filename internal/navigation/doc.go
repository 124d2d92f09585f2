/*
Package navigation drives the viewer: it turns user input into URLs, runs
each URL through fetch, rewrite and display, and keeps a browser-style
back/forward history.

# Lifecycle

	idle -> loading -> loaded
	            \----> failed (handed to the external browser)

Only the newest navigation may change state. Starting a navigation cancels
the one in flight, and any result that arrives for an older generation is
dropped without rendering, recording or opening anything.

# Observers

The controller publishes a Snapshot after every state change. Snapshots
are delivered outside the controller lock; Seq orders them.
*/
package navigation
