package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/clickshot/internal/cdp"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/state"
	"github.com/dgnsrekt/clickshot/internal/types"
)

// Selections are the stored next and previous elements of a tab.
type Selections struct {
	Next     *types.ElementSelection `json:"next,omitempty"`
	Previous *types.ElementSelection `json:"previous,omitempty"`
}

func parseRole(role string) (types.Role, error) {
	r, err := types.ParseRole(role)
	if err != nil {
		return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error()}
	}
	return r, nil
}

func (s *Service) GetSelections(ctx context.Context, tabID string) (Selections, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return Selections{}, err
	}
	tabID = strings.TrimSpace(tabID)
	var out Selections
	for _, role := range []types.Role{types.RoleNext, types.RolePrevious} {
		sel, found, err := state.LoadSelection(ctx, s.store, role, tabID)
		if err != nil {
			return Selections{}, err
		}
		if !found {
			continue
		}
		if role == types.RoleNext {
			out.Next = &sel
		} else {
			out.Previous = &sel
		}
	}
	return out, nil
}

// PutSelection stores a manually entered selector.
func (s *Service) PutSelection(ctx context.Context, tabID, role string, sel types.ElementSelection) (types.ElementSelection, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return types.ElementSelection{}, err
	}
	r, err := parseRole(role)
	if err != nil {
		return types.ElementSelection{}, err
	}
	sel.Selector = strings.TrimSpace(sel.Selector)
	if err := sel.Validate(); err != nil {
		return types.ElementSelection{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error()}
	}
	if err := state.SaveSelection(ctx, s.store, r, strings.TrimSpace(tabID), sel); err != nil {
		return types.ElementSelection{}, err
	}
	return sel, nil
}

func (s *Service) DeleteSelection(ctx context.Context, tabID, role string) error {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return err
	}
	r, err := parseRole(role)
	if err != nil {
		return err
	}
	return state.DeleteSelection(ctx, s.store, r, strings.TrimSpace(tabID))
}

// ResolveSelection evaluates the stored selection against the live DOM and
// regenerates its selector.
func (s *Service) ResolveSelection(ctx context.Context, tabID, role string) (cdp.Resolution, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return cdp.Resolution{}, err
	}
	r, err := parseRole(role)
	if err != nil {
		return cdp.Resolution{}, err
	}
	if s.resolver == nil {
		return cdp.Resolution{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "DOM inspector is not configured"}
	}
	tabID = strings.TrimSpace(tabID)
	sel, found, err := state.LoadSelection(ctx, s.store, r, tabID)
	if err != nil {
		return cdp.Resolution{}, err
	}
	if !found {
		return cdp.Resolution{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeSelectionNotFound, Message: fmt.Sprintf("no %s selection stored for tab %s", r, tabID)}
	}

	res, err := s.resolver.Resolve(ctx, tabID, sel)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, cdp.ErrNoMatch), errors.Is(err, cdp.ErrFrameNotFound):
		return res, &cdpcontrol.CodedError{Code: cdpcontrol.CodeElementNotFound, Message: fmt.Sprintf("%s selection does not match", r), Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return res, &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalTimeout, Message: "resolve timed out", Cause: err}
	}
	return res, &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "resolve failed", Cause: err}
}

// Recorder modes as they appear in API paths.
const (
	RecorderStartSelection     = "start-selection"
	RecorderStartRecordingNext = "start-recording-next"
	RecorderStartRecordingPrev = "start-recording-prev"
)

// ParseRecorderMode maps an API mode name to a recorder mode.
func ParseRecorderMode(mode string) (cdpcontrol.RecorderMode, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case RecorderStartSelection, string(cdpcontrol.ModePick):
		return cdpcontrol.ModePick, nil
	case RecorderStartRecordingNext, string(cdpcontrol.ModeRecordNext):
		return cdpcontrol.ModeRecordNext, nil
	case RecorderStartRecordingPrev, string(cdpcontrol.ModeRecordPrev):
		return cdpcontrol.ModeRecordPrev, nil
	}
	return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf("unknown recorder mode %q", mode)}
}

// StartRecorder installs the recorder in every frame and returns how many
// frames accepted it.
func (s *Service) StartRecorder(ctx context.Context, tabID, mode string) (int, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return 0, err
	}
	m, err := ParseRecorderMode(mode)
	if err != nil {
		return 0, err
	}
	return s.browser.StartRecorder(ctx, strings.TrimSpace(tabID), m)
}

func (s *Service) CancelRecorder(ctx context.Context, tabID string) error {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return err
	}
	return s.browser.CancelRecorder(ctx, strings.TrimSpace(tabID))
}

// HandleSelection persists a recorder report and republishes it. Register it
// with cdpcontrol.Client.OnSelection.
func (s *Service) HandleSelection(report cdpcontrol.SelectionReport) {
	role := types.RoleNext
	if report.Tag == events.TagPrevElementSelected {
		role = types.RolePrevious
	}
	sel := types.ElementSelection{Selector: report.Selector, FrameID: report.FrameID}

	ctx, cancel := context.WithTimeout(s.baseCtx, stateTimeout)
	defer cancel()
	if err := state.SaveSelection(ctx, s.store, role, report.TabID, sel); err != nil {
		slog.Error("failed to persist selection", "tab_id", report.TabID, "tag", report.Tag, "error", err)
		return
	}
	slog.Info("selection recorded", "tab_id", report.TabID, "role", role, "selector", sel.Selector, "frame_id", sel.FrameID)
	s.publish(report.Tag, report.TabID, sel)
}
