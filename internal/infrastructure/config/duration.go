package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that reads "5s"-style strings from env vars,
// TOML, YAML and JSON alike.
type Duration time.Duration

// Std returns the standard library value.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	return d.UnmarshalText([]byte(value))
}
