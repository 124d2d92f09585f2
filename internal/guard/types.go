package guard

import "time"

// Config bounds a harness run
type Config struct {
	BaseURL string        // document.baseURI and location.href
	Timeout time.Duration // per-Run execution limit
}

// DefaultConfig returns the configuration Verify uses
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://example.test/page",
		Timeout: 2 * time.Second,
	}
}

// Message is a postMessage the shim sent to its parent
type Message struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Origin string `json:"origin"`
}

// LogEntry represents console output
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}
