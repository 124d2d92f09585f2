package rewriter

import (
	"html"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"
)

var titlePolicy = bluemonday.StrictPolicy()

// Title returns the document title as plain text, or "" if there is none
func Title(root *nethtml.Node) string {
	node := htmlquery.FindOne(root, "//title")
	if node == nil {
		return ""
	}
	return CleanTitle(htmlquery.InnerText(node))
}

// CleanTitle strips markup and collapses whitespace
func CleanTitle(raw string) string {
	clean := html.UnescapeString(titlePolicy.Sanitize(raw))
	return strings.Join(strings.Fields(clean), " ")
}
