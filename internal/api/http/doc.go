/*
Package http implements the viewer's HTTP surface with gin.

	GET  /             shell page (toolbar, status line, sandboxed frame)
	GET  /view/:id     rendered documents, gzip, no-store, sandbox CSP
	GET  /api/state    current navigation snapshot
	POST /api/navigate {"url": "..."}
	POST /api/back
	POST /api/forward
	POST /api/reload
	POST /api/external open the current page in the user's browser
	POST /api/logs     shell diagnostics
	GET  /health

Navigation commands run detached from the request's cancellation, so a
client that disconnects mid-load does not abort the navigation other
shells are watching.
*/
package http
