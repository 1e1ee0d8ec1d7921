package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/clickshot/internal/bridge"
	"github.com/dgnsrekt/clickshot/internal/capture"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/state"
	"github.com/mitchellh/go-homedir"
)

// Location describes where the next run will save its screenshots.
type Location struct {
	SavedDirectoryName string `json:"saved_directory_name,omitempty" doc:"Display name of the chosen directory"`
	Granted            bool   `json:"granted" doc:"True while the directory grant is live in this process"`
	Mode               string `json:"mode" enum:"directory,downloads" doc:"Save policy the next run will use"`
}

func (s *Service) GetLocation(ctx context.Context) (Location, error) {
	name, err := state.DirectoryName(ctx, s.store)
	if err != nil {
		return Location{}, err
	}
	loc := Location{SavedDirectoryName: name, Mode: capture.ModeDownloads}
	if name != "" {
		loc.Mode = capture.ModeDirectory
		granted, ok := s.locations.Granted(ctx)
		loc.Granted = ok && granted == name
	}
	return loc, nil
}

// ChooseLocation grants path as the save directory. An empty path is a
// dismissed picker: it is logged and reported as chosen=false.
func (s *Service) ChooseLocation(ctx context.Context, path string) (bool, Location, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return false, Location{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "invalid path", Cause: err}
		}
		path = expanded
	}

	name, err := s.locations.SelectDirectory(ctx, path)
	if errors.Is(err, bridge.ErrUserAborted) {
		slog.Info("directory selection dismissed")
		loc, lerr := s.GetLocation(ctx)
		return false, loc, lerr
	}
	if err != nil {
		return false, Location{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "cannot use directory " + path, Cause: err}
	}

	if err := s.store.Set(ctx, state.SavedDirectoryKey, name); err != nil {
		return false, Location{}, err
	}
	slog.Info("save directory selected", "name", name)
	s.publish(events.TagLocationSelected, "", map[string]string{"name": name})
	return true, Location{SavedDirectoryName: name, Granted: true, Mode: capture.ModeDirectory}, nil
}

// ClearLocation forgets the saved directory and drops the grant; later runs
// save through downloads.
func (s *Service) ClearLocation(ctx context.Context) error {
	if err := s.store.Delete(ctx, state.SavedDirectoryKey); err != nil {
		return err
	}
	logErr("failed to drop directory grant", s.locations.Drop(ctx))
	return nil
}
