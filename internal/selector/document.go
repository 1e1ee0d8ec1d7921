package selector

import (
	"fmt"
	"io"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Match is one element found in a saved document.
type Match struct {
	Tag       string `json:"tag"`
	Canonical string `json:"canonical"`
}

// ParseDocument parses a saved HTML page.
func ParseDocument(r io.Reader) (*html.Node, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("selector: parse document: %w", err)
	}
	return doc, nil
}

// MatchCSS returns the canonical path of every element css matches, in
// document order.
func MatchCSS(doc *html.Node, css string) ([]Match, error) {
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("selector: compile %q: %w", css, err)
	}
	return canonicalize(sel.MatchAll(doc))
}

// MatchXPath is MatchCSS for an XPath expression. Non-element results such
// as text nodes are skipped.
func MatchXPath(doc *html.Node, expr string) ([]Match, error) {
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("selector: xpath %q: %w", expr, err)
	}
	return canonicalize(nodes)
}

func canonicalize(nodes []*html.Node) ([]Match, error) {
	out := make([]Match, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		node := FromHTML(n)
		path, err := Generate(node)
		if err != nil {
			return nil, err
		}
		out = append(out, Match{Tag: node.TagName(), Canonical: path})
	}
	return out, nil
}
