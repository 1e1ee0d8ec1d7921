package cdp

import (
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/clickshot/internal/storage"
	"github.com/dgnsrekt/clickshot/internal/types"
)

// TabRegistry maps CDP target IDs to journal routing metadata. The inspector
// keeps entries current as tabs navigate.
type TabRegistry struct {
	tabs map[target.ID]*types.TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*types.TabInfo)}
}

// Register records (or refreshes) the URL of a tab.
func (r *TabRegistry) Register(targetID target.ID, url string) *types.TabInfo {
	info := storage.TabInfoFor(string(targetID), url)

	r.mu.Lock()
	prev, had := r.tabs[targetID]
	r.tabs[targetID] = &info
	r.mu.Unlock()

	if !had || prev.PathSegment != info.PathSegment {
		slog.Debug("tab registered", "tab_id", targetID, "path_segment", info.PathSegment, "browser_id", info.BrowserID)
	}
	return &info
}

// Track registers a tab by its string id.
func (r *TabRegistry) Track(tabID, url string) {
	r.Register(target.ID(tabID), url)
}

func (r *TabRegistry) Get(targetID target.ID) (*types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) GetByStringID(tabID string) (*types.TabInfo, bool) {
	return r.Get(target.ID(tabID))
}

// Retain drops every tab not in live.
func (r *TabRegistry) Retain(live map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.tabs {
		if !live[string(id)] {
			delete(r.tabs, id)
		}
	}
}
