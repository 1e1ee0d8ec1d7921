package types

// TabInfo holds metadata about a browser tab for routing run output.
type TabInfo struct {
	TargetID    string
	URL         string
	PathSegment string // Transformed URL path, e.g., "products_list"
	BrowserID   string // Short ID from target ID, e.g., "B0D5A8E8"
}

// TabInfoProvider looks up tab information by target ID.
// Run journals are routed through it.
type TabInfoProvider interface {
	GetByStringID(tabID string) (*TabInfo, bool)
}
