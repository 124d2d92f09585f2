// Package external opens URLs in the user's default browser.
//
// It is the fallback for anything the viewer cannot show: failed fetches,
// error statuses, non-document content and URLs matching the configured
// external patterns. URLs are validated first; only http and https are
// ever handed to the operating system.
package external
