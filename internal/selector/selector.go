// Package selector builds CSS paths that address a single DOM element.
//
// The same algorithm runs inside the page when a selection is recorded; this
// package is the Go rendition used to canonicalise selectors against DOM
// snapshots fetched over CDP and parsed HTML documents.
package selector

import (
	"errors"
	"strconv"
	"strings"
)

// Separator joins path segments, parent first.
const Separator = " > "

// ErrNotElement is returned when the generator is given something other than an element.
var ErrNotElement = errors.New("selector: node is not an element")

// Node is the minimal DOM view the generator needs. Implementations must
// return a nil interface (not a typed nil) when there is no parent or sibling.
type Node interface {
	IsElement() bool
	// TagName returns the lower-cased element name.
	TagName() string
	ID() string
	Parent() Node
	PrevElementSibling() Node
}

// Generate returns the CSS path from the document root (or the nearest
// ancestor carrying an id) down to n.
func Generate(n Node) (string, error) {
	if n == nil || !n.IsElement() {
		return "", ErrNotElement
	}

	var path []string
	for el := n; el != nil && el.IsElement(); el = el.Parent() {
		tag := el.TagName()
		if id := el.ID(); id != "" {
			path = append(path, tag+"#"+id)
			break
		}
		if nth := nthOfType(el, tag); nth != 1 {
			tag += ":nth-of-type(" + strconv.Itoa(nth) + ")"
		}
		path = append(path, tag)
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, Separator), nil
}

// nthOfType counts el's 1-based position among element siblings sharing its tag.
func nthOfType(el Node, tag string) int {
	nth := 1
	for sib := el.PrevElementSibling(); sib != nil; sib = sib.PrevElementSibling() {
		if sib.TagName() == tag {
			nth++
		}
	}
	return nth
}
