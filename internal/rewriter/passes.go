package rewriter

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// skipFunc reports whether an attribute value must stay byte-identical
type skipFunc func(v string) bool

func skipHref(v string) bool {
	lower := strings.ToLower(v)
	return v == "" ||
		strings.HasPrefix(v, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		isHTTP(lower) ||
		strings.HasPrefix(v, "//")
}

func skipSrc(v string) bool {
	lower := strings.ToLower(v)
	return v == "" ||
		strings.HasPrefix(lower, "data:") ||
		isHTTP(lower) ||
		strings.HasPrefix(v, "//")
}

func skipAction(v string) bool {
	return v == "" || strings.HasPrefix(v, "//") || isHTTP(strings.ToLower(v))
}

func isHTTP(lower string) bool {
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// absolutize resolves relative href, src and action values against base.
// Values carrying any scheme are already absolute and are left alone, as
// is anything that fails to parse.
func absolutize(doc *goquery.Document, base *url.URL) {
	rules := []struct {
		attr string
		skip skipFunc
	}{
		{"href", skipHref},
		{"src", skipSrc},
		{"action", skipAction},
	}

	for _, rule := range rules {
		doc.Find("[" + rule.attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(rule.attr)
			if resolved, ok := resolve(base, v, rule.skip); ok {
				s.SetAttr(rule.attr, resolved)
			}
		})
	}
}

func resolve(base *url.URL, v string, skip skipFunc) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if skip(trimmed) {
		return "", false
	}
	ref, err := url.Parse(trimmed)
	if err != nil || ref.IsAbs() {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// neutralizeForms parks each action in data-original-action, where the
// guard reads it, and disables native submission
func neutralizeForms(doc *goquery.Document) {
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		if action, ok := s.Attr("action"); ok {
			s.SetAttr("data-original-action", action)
			s.SetAttr("action", NeutralAction)
		}
		s.SetAttr("onsubmit", "return false;")
	})
}

// suppressRemoteResources swaps external scripts and stylesheets for
// comments naming what was dropped
func suppressRemoteResources(doc *goquery.Document) {
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		s.ReplaceWithNodes(comment(" Script disabled for CORS prevention: " + escapeComment(src) + " "))
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if !hasToken(s.AttrOr("rel", ""), "stylesheet") {
			return
		}
		href, _ := s.Attr("href")
		s.ReplaceWithNodes(comment(" CSS disabled for CORS prevention: " + escapeComment(href) + " "))
	})
}

// removeFrameOptions drops <meta http-equiv="X-Frame-Options">
func removeFrameOptions(doc *goquery.Document) {
	doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(strings.TrimSpace(s.AttrOr("http-equiv", "")), "X-Frame-Options") {
			s.Remove()
		}
	})
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

func comment(text string) *html.Node {
	return &html.Node{Type: html.CommentNode, Data: text}
}

// escapeComment keeps a URL from closing the comment it is quoted in
func escapeComment(s string) string {
	return strings.ReplaceAll(s, "--", "%2D%2D")
}

// isMapURL reports whether v points at a source map file
func isMapURL(v string) bool {
	if u, err := url.Parse(strings.TrimSpace(v)); err == nil {
		return strings.EqualFold(path.Ext(u.Path), ".map")
	}
	return strings.Contains(strings.ToLower(v), ".map")
}
