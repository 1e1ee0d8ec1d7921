// Package state persists recorder selections and the chosen save location
// under the same keys the click loop reads at the start of every run.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgnsrekt/clickshot/internal/types"
)

// SavedDirectoryKey holds the display name of the directory the user granted.
const SavedDirectoryKey = "savedDirectoryName"

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("state: key not found")

// Store is a flat string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SelectionKey returns the key a tab's selection for role is stored under.
func SelectionKey(role types.Role, tabID string) string {
	return role.StateKeyPrefix() + tabID
}

// LoadSelection reads the stored selection for a tab. found is false when
// nothing has been recorded yet.
func LoadSelection(ctx context.Context, s Store, role types.Role, tabID string) (sel types.ElementSelection, found bool, err error) {
	raw, err := s.Get(ctx, SelectionKey(role, tabID))
	if errors.Is(err, ErrNotFound) {
		return types.ElementSelection{}, false, nil
	}
	if err != nil {
		return types.ElementSelection{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return types.ElementSelection{}, false, fmt.Errorf("state: decode %s selection for tab %s: %w", role, tabID, err)
	}
	return sel, true, nil
}

// SaveSelection validates and stores a selection.
func SaveSelection(ctx context.Context, s Store, role types.Role, tabID string, sel types.ElementSelection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("state: encode selection: %w", err)
	}
	return s.Set(ctx, SelectionKey(role, tabID), string(data))
}

// DeleteSelection forgets a tab's selection for role.
func DeleteSelection(ctx context.Context, s Store, role types.Role, tabID string) error {
	return s.Delete(ctx, SelectionKey(role, tabID))
}

// DirectoryName returns the saved directory display name, or "" when the
// user never chose one.
func DirectoryName(ctx context.Context, s Store) (string, error) {
	name, err := s.Get(ctx, SavedDirectoryKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return name, err
}
