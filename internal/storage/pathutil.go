package storage

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/clickshot/internal/types"
)

// TransformURLToPathSegment turns a URL path into a filesystem-safe segment:
// "/products/list/" becomes "products_list", an empty path becomes "root".
func TransformURLToPathSegment(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return "root", nil
	}
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|', '\\':
			return '_'
		}
		return r
	}, path)
	return path, nil
}

// BrowserIDFromTargetID returns the first 8 chars of a CDP target ID.
func BrowserIDFromTargetID(targetID string) string {
	if len(targetID) >= 8 {
		return targetID[:8]
	}
	return targetID
}

// TabInfoFor derives journal routing metadata for a tab. Unparseable URLs
// fall back to the "root" segment.
func TabInfoFor(targetID, rawURL string) types.TabInfo {
	segment, err := TransformURLToPathSegment(rawURL)
	if err != nil {
		segment = "root"
	}
	return types.TabInfo{
		TargetID:    targetID,
		URL:         rawURL,
		PathSegment: segment,
		BrowserID:   BrowserIDFromTargetID(targetID),
	}
}

// UniqueName returns name, or "stem (n).ext" with the smallest n >= 1 that
// does not exist in dir yet.
func UniqueName(dir, name string) string {
	if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}
