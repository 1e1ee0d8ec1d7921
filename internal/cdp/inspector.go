// Package cdp inspects live tabs through chromedp: it snapshots the DOM of a
// tab to canonicalise stored selectors and tracks tab URLs for journal routing.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/clickshot/internal/selector"
	"github.com/dgnsrekt/clickshot/internal/types"
)

// ErrNoMatch is returned when a selector matches nothing in the frame.
var ErrNoMatch = errors.New("selector matches no element")

// ErrFrameNotFound is returned when a frame index is past the end of the frame tree.
var ErrFrameNotFound = errors.New("frame not found")

// Resolution describes what a stored selection points at right now.
type Resolution struct {
	Selector   string `json:"selector" doc:"Selector as stored"`
	FrameID    int    `json:"frameId" doc:"Frame index the selector was evaluated in"`
	Canonical  string `json:"canonical" doc:"Selector regenerated from the matched element"`
	Tag        string `json:"tag" doc:"Tag name of the matched element"`
	MatchCount int    `json:"match_count" doc:"Number of elements the stored selector matches"`
	Stable     bool   `json:"stable" doc:"True when the regenerated selector equals the stored one"`
}

// Inspector holds a chromedp remote allocator and one context per inspected tab.
type Inspector struct {
	cdpURL  string
	timeout time.Duration
	tabs    *TabRegistry

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtxs     map[target.ID]tabContext
}

type tabContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewInspector(cdpURL string, timeout time.Duration, tabs *TabRegistry) *Inspector {
	return &Inspector{
		cdpURL:  cdpURL,
		timeout: timeout,
		tabs:    tabs,
		tabCtxs: make(map[target.ID]tabContext),
	}
}

// tabCtx returns the chromedp context for a tab, attaching on first use.
func (in *Inspector) tabCtx(tabID string) (context.Context, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.allocCtx == nil {
		slog.Info("inspector connecting to Chromium", "url", in.cdpURL)
		in.allocCtx, in.allocCancel = chromedp.NewRemoteAllocator(context.Background(), in.cdpURL)
	}

	id := target.ID(tabID)
	if tc, ok := in.tabCtxs[id]; ok && tc.ctx.Err() == nil {
		return tc.ctx, nil
	}

	ctx, cancel := chromedp.NewContext(in.allocCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("inspector attach %s: %w", tabID, err)
	}
	chromedp.ListenTarget(ctx, in.navigationHandler(id))
	in.tabCtxs[id] = tabContext{ctx: ctx, cancel: cancel}
	slog.Debug("inspector attached", "tab_id", tabID)
	return ctx, nil
}

func (in *Inspector) navigationHandler(tabID target.ID) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				in.tabs.Register(tabID, e.Frame.URL)
			}
		case *page.EventNavigatedWithinDocument:
			in.tabs.Register(tabID, e.URL)
		}
	}
}

// Resolve evaluates sel against a fresh DOM snapshot of its frame and
// regenerates the selector from the first match.
func (in *Inspector) Resolve(ctx context.Context, tabID string, sel types.ElementSelection) (Resolution, error) {
	if err := sel.Validate(); err != nil {
		return Resolution{}, err
	}
	tabCtx, err := in.tabCtx(tabID)
	if err != nil {
		return Resolution{}, err
	}

	runCtx, cancel := context.WithTimeout(tabCtx, in.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	res := Resolution{Selector: sel.Selector, FrameID: sel.FrameID}
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("frame tree: %w", err)
		}
		frameIDs := FrameOrder(tree)
		if sel.FrameID >= len(frameIDs) {
			return fmt.Errorf("%w: index %d of %d", ErrFrameNotFound, sel.FrameID, len(frameIDs))
		}

		root, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		selector.LinkParents(root)

		doc := root
		if sel.FrameID != types.MainFrameID {
			doc = FrameDocument(root, frameIDs[sel.FrameID])
			if doc == nil {
				return fmt.Errorf("%w: no document for frame %s", ErrFrameNotFound, frameIDs[sel.FrameID])
			}
		}

		ids, err := dom.QuerySelectorAll(doc.NodeID, sel.Selector).Do(ctx)
		if err != nil {
			return fmt.Errorf("query selector: %w", err)
		}
		res.MatchCount = len(ids)
		if len(ids) == 0 {
			return ErrNoMatch
		}
		node := FindNode(doc, ids[0])
		if node == nil {
			return fmt.Errorf("matched node %d missing from snapshot", ids[0])
		}
		res.Tag = selector.FromCDP(node).TagName()
		res.Canonical, err = selector.Generate(selector.FromCDP(node))
		return err
	}))
	if err != nil {
		return res, err
	}
	res.Stable = res.Canonical == res.Selector
	return res, nil
}

// Close detaches from every tab and releases the allocator.
func (in *Inspector) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, tc := range in.tabCtxs {
		tc.cancel()
		delete(in.tabCtxs, id)
	}
	if in.allocCancel != nil {
		in.allocCancel()
		in.allocCtx, in.allocCancel = nil, nil
	}
	return nil
}

// FrameOrder lists frame ids depth-first, main frame first. The position in
// the list is the frame index used by selections.
func FrameOrder(tree *page.FrameTree) []cdp.FrameID {
	var out []cdp.FrameID
	var walk func(t *page.FrameTree)
	walk = func(t *page.FrameTree) {
		if t == nil || t.Frame == nil {
			return
		}
		out = append(out, t.Frame.ID)
		for _, child := range t.ChildFrames {
			walk(child)
		}
	}
	walk(tree)
	return out
}

// FrameDocument finds the content document of the frame owner element for frameID.
func FrameDocument(root *cdp.Node, frameID cdp.FrameID) *cdp.Node {
	if root == nil {
		return nil
	}
	if root.ContentDocument != nil && root.FrameID == frameID {
		return root.ContentDocument
	}
	if root.ContentDocument != nil {
		if doc := FrameDocument(root.ContentDocument, frameID); doc != nil {
			return doc
		}
	}
	for _, child := range root.Children {
		if doc := FrameDocument(child, frameID); doc != nil {
			return doc
		}
	}
	return nil
}

// FindNode returns the node with id inside root, descending into frames.
func FindNode(root *cdp.Node, id cdp.NodeID) *cdp.Node {
	if root == nil {
		return nil
	}
	if root.NodeID == id {
		return root
	}
	for _, child := range root.Children {
		if n := FindNode(child, id); n != nil {
			return n
		}
	}
	return FindNode(root.ContentDocument, id)
}
