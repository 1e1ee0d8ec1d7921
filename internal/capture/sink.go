package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/clickshot/internal/bridge"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
)

// Save modes reported in run summaries.
const (
	ModeDirectory = "directory"
	ModeDownloads = "downloads"
)

// Sink persists one screenshot.
type Sink interface {
	Save(ctx context.Context, filename string, data []byte) error
	Mode() string
}

// FileSaver is implemented by bridge.Bridge.
type FileSaver interface {
	SaveFile(ctx context.Context, filename string, data []byte) error
}

// AsyncWriter is implemented by storage.DownloadsWriter.
type AsyncWriter interface {
	SaveAsync(filename string, data []byte)
}

// DirectorySink writes into the granted directory. A missing grant is an
// error: the run must not silently fall back to downloads.
type DirectorySink struct {
	Saver FileSaver
	Name  string
}

func (s DirectorySink) Mode() string { return ModeDirectory }

func (s DirectorySink) Save(ctx context.Context, filename string, data []byte) error {
	err := s.Saver.SaveFile(ctx, filename, data)
	if errors.Is(err, bridge.ErrDirectoryNotGranted) {
		return &cdpcontrol.CodedError{
			Code:    cdpcontrol.CodeDirectoryNotGranted,
			Message: fmt.Sprintf("directory %q is saved but not granted in this session; choose the location again", s.Name),
			Cause:   err,
		}
	}
	return err
}

// DownloadsSink hands files to the downloads writer and returns at once.
type DownloadsSink struct {
	Writer AsyncWriter
}

func (s DownloadsSink) Mode() string { return ModeDownloads }

func (s DownloadsSink) Save(_ context.Context, filename string, data []byte) error {
	s.Writer.SaveAsync(filename, data)
	return nil
}

// SelectSink picks the persistence policy for a run from the stored
// directory name.
func SelectSink(directoryName string, saver FileSaver, downloads AsyncWriter) Sink {
	if directoryName != "" {
		return DirectorySink{Saver: saver, Name: directoryName}
	}
	return DownloadsSink{Writer: downloads}
}
