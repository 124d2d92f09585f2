package rewriter

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	lineMapComment  = regexp.MustCompile(`(?i)//\s*[#@]\s*sourceMappingURL=[^\r\n]*`)
	blockMapComment = regexp.MustCompile(`(?i)/\*\s*[#@]\s*sourceMappingURL=[^*]*\*/`)
	bareMapURL      = regexp.MustCompile(`(?i)sourceMappingURL=[^;\s)]+`)
	cssMapURL       = regexp.MustCompile(`(?i)url\(\s*['"]?[^'"()]*\.map(?:[?#][^'"()]*)?['"]?\s*\)`)
)

// removeSourceMapElements replaces link and script elements that load a
// .map file, then drops .map references left in any other src, href or
// style attribute. It runs before remote resource suppression so these get
// the more specific comment.
func removeSourceMapElements(doc *goquery.Document) {
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if isMapURL(s.AttrOr("href", "")) {
			s.ReplaceWithNodes(comment(" Map file link removed "))
		}
	})
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if isMapURL(s.AttrOr("src", "")) {
			s.ReplaceWithNodes(comment(" Map file script removed "))
		}
	})
	doc.Find("[src], [href]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "href"} {
			if v, ok := s.Attr(attr); ok && isMapURL(v) {
				s.RemoveAttr(attr)
			}
		}
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		v := s.AttrOr("style", "")
		if stripped := StripStyleSourceMaps(v); stripped != v {
			s.SetAttr("style", stripped)
		}
	})
}

// stripInlineSourceMaps removes sourceMappingURL annotations from inline
// script and style bodies
func stripInlineSourceMaps(doc *goquery.Document) {
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		rewriteText(s, StripScriptSourceMaps)
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		rewriteText(s, StripStyleSourceMaps)
	})
}

// StripScriptSourceMaps removes source map annotations from JavaScript
func StripScriptSourceMaps(js string) string {
	js = lineMapComment.ReplaceAllString(js, "")
	return blockMapComment.ReplaceAllString(js, "")
}

// StripStyleSourceMaps removes source map annotations from CSS. A url()
// naming a .map file becomes none.
func StripStyleSourceMaps(css string) string {
	css = blockMapComment.ReplaceAllString(css, "")
	css = cssMapURL.ReplaceAllString(css, "none")
	return bareMapURL.ReplaceAllString(css, "")
}

func rewriteText(s *goquery.Selection, fn func(string) string) {
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				c.Data = fn(c.Data)
			}
		}
	}
}
