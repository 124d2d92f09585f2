package navigation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExternalPatterns lists paths the surface cannot render
var DefaultExternalPatterns = []string{"**/*.pdf", "**/*.zip", "**/*.exe", "**/*.dmg"}

// Rules decides which URLs skip the fetch and go straight to the external
// browser. Patterns are doublestar globs matched against the lowercased
// URL path without its leading slash.
type Rules struct {
	patterns []string
}

// NewRules validates patterns
func NewRules(patterns []string) (*Rules, error) {
	r := &Rules{}
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p)), "/")
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid external pattern %q", p)
		}
		r.patterns = append(r.patterns, p)
	}
	return r, nil
}

// Match returns the first pattern matching target's path
func (r *Rules) Match(target string) (string, bool) {
	if r == nil || len(r.patterns) == 0 {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	path := strings.TrimPrefix(strings.ToLower(u.Path), "/")
	if path == "" {
		return "", false
	}
	for _, p := range r.patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return p, true
		}
	}
	return "", false
}

// Patterns returns the active patterns
func (r *Rules) Patterns() []string {
	if r == nil {
		return nil
	}
	return append([]string{}, r.patterns...)
}
