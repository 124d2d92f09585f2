// Package config provides layered configuration for the viewer.
//
// Values are resolved in order, later sources winning:
//
//  1. Default()
//  2. An optional config file (.toml, .yaml/.yml or .json)
//  3. Environment variables
//  4. CLI flags, applied by cmd/proxyview
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - FETCH_TIMEOUT, FETCH_RETRIES, FETCH_MAX_REDIRECTS, FETCH_MAX_BODY_BYTES,
//     FETCH_USER_AGENT, FETCH_RATE_LIMIT
//   - RENDER_RELEASE_DELAY, RENDER_MAX_DOCUMENTS, RENDER_MAX_DOCUMENT_BYTES
//   - START_URL, OPEN_EXTERNAL, EXTERNAL_PATTERNS (comma separated)
package config
