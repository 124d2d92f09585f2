// Package fetch retrieves remote documents for the viewer.
//
// Client is built on go-resty/resty over a go-retryablehttp transport that
// retries connection errors and 5xx responses, passing the last response
// through once retries are exhausted. Requests carry a desktop User-Agent,
// follow at most ten redirects and pass through a rate limiter and a circuit
// breaker keyed by host.
//
// Bodies are capped, then decoded to UTF-8 using x/net/html/charset, with
// saintfish/chardet as the fallback detector. When the server omits a
// Content-Type, gabriel-vasile/mimetype sniffs one.
//
// Any HTTP status is a Result. Only transport failures, oversized bodies and
// open breakers are errors; the navigation controller treats both the same
// way and hands the URL to the external browser.
package fetch
