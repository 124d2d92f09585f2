// Package main is the entry point for proxyview.
//
// proxyview serves a viewer shell that fetches remote pages, rewrites them
// into self-contained documents and displays them in a sandboxed frame
// with back/forward/reload history.
//
// Commands:
//   - serve (default): run the HTTP server
//   - rewrite: run the rewrite pipeline on a file or stdin
//   - fetch: fetch one URL and print the rewritten document
//
// Configuration precedence: defaults < config file < environment < flags.
//
// Usage:
//
//	proxyview --dev --open example.com
//	proxyview serve --config proxyview.toml --port 9000
//	proxyview rewrite --base https://example.com/page page.html
//	curl -s https://example.com | proxyview rewrite --base https://example.com/
//	proxyview fetch --raw example.com
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
