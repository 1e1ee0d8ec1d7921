package selector

import (
	"strings"

	"github.com/chromedp/cdproto/cdp"
)

type cdpNode struct{ n *cdp.Node }

// FromCDP adapts a node from a DOM.getDocument snapshot. The snapshot must
// have parent links set, see LinkParents.
func FromCDP(n *cdp.Node) Node {
	if n == nil {
		return nil
	}
	return cdpNode{n: n}
}

// LinkParents fills the Parent field of every node below root. DOM.getDocument
// returns children only, so a freshly decoded tree has no upward links.
// Frame content documents are linked to nothing, which keeps generated
// paths relative to the frame's own document.
func LinkParents(root *cdp.Node) {
	if root == nil {
		return
	}
	for _, child := range root.Children {
		child.Parent = root
		LinkParents(child)
	}
	if root.ContentDocument != nil {
		root.ContentDocument.Parent = nil
		LinkParents(root.ContentDocument)
	}
}

func (c cdpNode) IsElement() bool { return c.n.NodeType == cdp.NodeTypeElement }

func (c cdpNode) TagName() string { return strings.ToLower(c.n.NodeName) }

func (c cdpNode) ID() string { return c.n.AttributeValue("id") }

func (c cdpNode) Parent() Node {
	if c.n.Parent == nil {
		return nil
	}
	return cdpNode{n: c.n.Parent}
}

func (c cdpNode) PrevElementSibling() Node {
	p := c.n.Parent
	if p == nil {
		return nil
	}
	idx := -1
	for i, child := range p.Children {
		if child == c.n {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if p.Children[i].NodeType == cdp.NodeTypeElement {
			return cdpNode{n: p.Children[i]}
		}
	}
	return nil
}
