package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DownloadsWriter saves files into a downloads directory without ever
// overwriting: a clashing name gets a " (n)" suffix.
type DownloadsWriter struct {
	dir string

	mu sync.Mutex // serialises name selection with file creation
	wg sync.WaitGroup
}

func NewDownloadsWriter(dir string) *DownloadsWriter {
	return &DownloadsWriter{dir: dir}
}

// Dir returns the target directory.
func (w *DownloadsWriter) Dir() string { return w.dir }

// Save writes data under a unique variant of filename and returns the path written.
func (w *DownloadsWriter) Save(filename string, data []byte) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("downloads: invalid filename %q", filename)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("downloads: mkdir %s: %w", w.dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, UniqueName(w.dir, filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("downloads: create: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("downloads: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("downloads: close: %w", err)
	}
	return path, nil
}

// SaveAsync starts Save in the background. Its outcome is only logged.
func (w *DownloadsWriter) SaveAsync(filename string, data []byte) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		path, err := w.Save(filename, data)
		if err != nil {
			slog.Error("download failed", "filename", filename, "error", err)
			return
		}
		slog.Info("download complete", "path", path, "size", len(data))
	}()
}

// Wait blocks until every SaveAsync started so far has finished.
func (w *DownloadsWriter) Wait() { w.wg.Wait() }
