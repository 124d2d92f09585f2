// Package id provides ULID-based identifiers for the viewer.
//
// Every identifier is a lexicographically sortable ULID carrying a short
// type prefix (doc_*, nav_*, req_*) so that log lines stay readable and a
// document handle can never be confused with a trace or navigation ID.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Typed IDs
// ============================================================================

// DocumentID identifies a rendered document held by the render host
type DocumentID string

// NavigationID identifies a single navigation attempt
type NavigationID string

// RequestID identifies an HTTP request or tracing span
type RequestID string

const (
	DocumentPrefix   = "doc"
	NavigationPrefix = "nav"
	RequestPrefix    = "req"
)

// ============================================================================
// Generator
// ============================================================================

// Generator produces monotonic ULIDs
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() (ulid.ULID, error) {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.New(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string such as doc_01H...
func (g *Generator) GenerateWithPrefix(prefix string) (string, error) {
	u, err := g.Generate()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + "_" + u.String(), nil
}

// mustPrefixed panics only when the entropy source is broken
func (g *Generator) mustPrefixed(prefix string) string {
	s, err := g.GenerateWithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return s
}

// ============================================================================
// Typed constructors
// ============================================================================

// NewDocumentID returns a document ID, or an error if entropy is exhausted.
// The render host falls back to inline documents on error.
func NewDocumentID() (DocumentID, error) {
	s, err := Default().GenerateWithPrefix(DocumentPrefix)
	return DocumentID(s), err
}

// NewNavigationID generates a navigation ID
func NewNavigationID() NavigationID {
	return NavigationID(Default().mustPrefixed(NavigationPrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().mustPrefixed(RequestPrefix))
}

func (id DocumentID) String() string   { return string(id) }
func (id NavigationID) String() string { return string(id) }
func (id RequestID) String() string    { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid reports whether s is a bare ULID
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// HasPrefix reports whether s is a well-formed prefixed ID of the given type
func HasPrefix(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	return ok && IsValid(rest)
}

// Timestamp extracts the creation time from a prefixed or bare ID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
