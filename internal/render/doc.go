// Package render hosts the documents shown in the sandboxed surface.
//
// Rewritten pages are kept in memory, never on disk, in a Registry built on
// hashicorp/golang-lru. The shell's iframe loads them from /view/<id>.
// Host tracks the current handle and releases the previous one five seconds
// after it is replaced. If the registry refuses a document (closed, or over
// the size limit) Host returns a data: URI handle instead, so Display always
// produces something the surface can load.
package render
