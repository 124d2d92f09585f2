package rewriter

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/proxyview/internal/guard"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LayoutStyle keeps the document flush with the iframe and scrollable
const LayoutStyle = "html, body { margin: 0; padding: 0; overflow-x: auto; height: auto !important; }"

// NeutralAction replaces a form's live action so native submission goes nowhere
const NeutralAction = "javascript:void(0)"

// Result is a rewritten document
type Result struct {
	HTML  string
	Title string
}

// Rewrite turns untrusted HTML into a self-contained document that is safe
// to show in the sandboxed surface. It is pure: the same input always
// produces the same output.
func Rewrite(src, baseURL string) string {
	return Process(src, baseURL).HTML
}

// Process rewrites src against baseURL and extracts the document title.
// Unparseable input is returned as-is behind the guard block rather than
// rejected.
func Process(src, baseURL string) Result {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return Result{HTML: guardBlock(baseURL) + src}
	}

	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}

	doc := goquery.NewDocumentFromNode(root)

	if base != nil {
		absolutize(doc, base)
	}
	doc.Find("[target]").RemoveAttr("target")
	neutralizeForms(doc)
	removeSourceMapElements(doc)
	suppressRemoteResources(doc)
	stripInlineSourceMaps(doc)
	removeFrameOptions(doc)

	head := ensureShell(root)
	nodes := injection(baseURL)
	for i := len(nodes) - 1; i >= 0; i-- {
		head.InsertBefore(nodes[i], head.FirstChild)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return Result{HTML: guardBlock(baseURL) + src, Title: Title(root)}
	}

	return Result{HTML: buf.String(), Title: Title(root)}
}

// injection builds the nodes prepended to <head>: base, layout style, guard
func injection(baseURL string) []*html.Node {
	return []*html.Node{
		{
			Type:     html.ElementNode,
			DataAtom: atom.Base,
			Data:     "base",
			Attr:     []html.Attribute{{Key: "href", Val: baseURL}},
		},
		rawTextElement(atom.Style, LayoutStyle),
		rawTextElement(atom.Script, guard.Script()),
	}
}

func rawTextElement(a atom.Atom, text string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

// guardBlock is the textual form of the injection, used when the tree
// could not be built
func guardBlock(baseURL string) string {
	var buf bytes.Buffer
	for _, n := range injection(baseURL) {
		_ = html.Render(&buf, n)
	}
	return buf.String()
}

// ensureShell guarantees <html>, <head> and <body> exist and returns <head>.
// html.Parse already synthesizes them for documents; trees built from
// fragments may lack them.
func ensureShell(root *html.Node) *html.Node {
	htmlNode := child(root, atom.Html)
	if htmlNode == nil {
		htmlNode = &html.Node{Type: html.ElementNode, DataAtom: atom.Html, Data: "html"}
		root.AppendChild(htmlNode)
	}

	head := child(htmlNode, atom.Head)
	if head == nil {
		head = &html.Node{Type: html.ElementNode, DataAtom: atom.Head, Data: "head"}
		htmlNode.InsertBefore(head, htmlNode.FirstChild)
	}

	if child(htmlNode, atom.Body) == nil {
		htmlNode.AppendChild(&html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"})
	}
	return head
}

func child(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}
