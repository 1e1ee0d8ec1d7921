package selector

import (
	"strings"

	"golang.org/x/net/html"
)

type htmlNode struct{ n *html.Node }

// FromHTML adapts a parsed golang.org/x/net/html node.
func FromHTML(n *html.Node) Node {
	if n == nil {
		return nil
	}
	return htmlNode{n: n}
}

func (h htmlNode) IsElement() bool { return h.n.Type == html.ElementNode }

func (h htmlNode) TagName() string { return strings.ToLower(h.n.Data) }

func (h htmlNode) ID() string {
	for _, a := range h.n.Attr {
		if a.Namespace == "" && a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

func (h htmlNode) Parent() Node {
	if h.n.Parent == nil {
		return nil
	}
	return htmlNode{n: h.n.Parent}
}

func (h htmlNode) PrevElementSibling() Node {
	for s := h.n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return htmlNode{n: s}
		}
	}
	return nil
}
