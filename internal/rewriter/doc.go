// Package rewriter turns fetched HTML into a document the sandboxed surface
// can show without reaching back to the origin.
//
// The document is parsed with golang.org/x/net/html and rewritten as a tree
// with goquery:
//
//   - relative href, src and action values are resolved against the base URL
//   - target attributes are removed
//   - form actions move to data-original-action and native submit is disabled
//   - source map links and scripts are removed, as are inline annotations
//   - remote scripts and stylesheets become comments
//   - <meta http-equiv="X-Frame-Options"> is removed
//
// Finally <base>, a layout style and the guard script are prepended to
// <head>. The title is read with htmlquery and sanitized with bluemonday.
package rewriter
