package types

import (
	"errors"
	"strings"
)

// Role identifies which button of a paginated page a selection points at.
type Role string

const (
	RoleNext     Role = "next"
	RolePrevious Role = "previous"
)

// MainFrameID is the frame index of a tab's top-level document.
const MainFrameID = 0

// ParseRole accepts the API spellings of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "next":
		return RoleNext, nil
	case "previous", "prev":
		return RolePrevious, nil
	}
	return "", errors.New("role must be \"next\" or \"previous\"")
}

// StateKeyPrefix returns the persisted key prefix for the role.
func (r Role) StateKeyPrefix() string {
	if r == RolePrevious {
		return "prev_selection_tab_"
	}
	return "next_selection_tab_"
}

// ElementSelection identifies one DOM element within one frame of one tab.
type ElementSelection struct {
	Selector string `json:"selector" doc:"CSS selector of the element"`
	FrameID  int    `json:"frameId" required:"false" doc:"Frame index within the tab (0 = main frame)"`
}

// Validate reports whether the selection can be replayed.
func (s ElementSelection) Validate() error {
	if strings.TrimSpace(s.Selector) == "" {
		return errors.New("selector is required")
	}
	if s.FrameID < 0 {
		return errors.New("frameId must be >= 0")
	}
	return nil
}

// CaptureJob describes one click/screenshot run. It is built per run and never persisted.
type CaptureJob struct {
	TabID      string
	Next       ElementSelection
	Prev       *ElementSelection
	ClickCount int
}

// Validate checks the invariants of a job before it is started.
func (j CaptureJob) Validate() error {
	if strings.TrimSpace(j.TabID) == "" {
		return errors.New("tab_id is required")
	}
	if err := j.Next.Validate(); err != nil {
		return errors.New("next selection: " + err.Error())
	}
	if j.Prev != nil {
		if err := j.Prev.Validate(); err != nil {
			return errors.New("previous selection: " + err.Error())
		}
	}
	if j.ClickCount < 1 {
		return errors.New("clicks must be a positive integer")
	}
	return nil
}
