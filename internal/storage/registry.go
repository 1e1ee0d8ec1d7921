package storage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/clickshot/internal/types"
)

// JournalEntry is one line of a tab's run journal.
type JournalEntry struct {
	Time      time.Time `json:"time"`
	RunID     string    `json:"run_id"`
	TabID     string    `json:"tab_id"`
	Event     string    `json:"event"`
	Iteration int       `json:"iteration,omitempty"`
	File      string    `json:"file,omitempty"`
	Size      int       `json:"size,omitempty"`
	SHA256    string    `json:"sha256,omitempty"`
	Selector  string    `json:"selector,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Journal routes entries to one JSONLWriter per tab, laid out as
// <baseDir>/<date>/<url path segment>/<browser id>.jsonl.
type Journal struct {
	baseDir    string
	maxSizeMB  int
	bufferSize int

	mu      sync.Mutex
	writers map[string]*JSONLWriter // keyed by tab id
}

// NewJournal creates an empty journal registry.
func NewJournal(baseDir string, bufferSize, maxSizeMB int) *Journal {
	return &Journal{
		baseDir:    baseDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]*JSONLWriter),
	}
}

// Record queues entry on the writer for tab, creating it on first use.
func (j *Journal) Record(tab types.TabInfo, entry JournalEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	if entry.TabID == "" {
		entry.TabID = tab.TargetID
	}
	if err := j.writerFor(tab).Write(entry); err != nil {
		slog.Debug("journal entry dropped", "tab_id", tab.TargetID, "event", entry.Event, "error", err)
	}
}

func (j *Journal) writerFor(tab types.TabInfo) *JSONLWriter {
	j.mu.Lock()
	defer j.mu.Unlock()

	if w, ok := j.writers[tab.TargetID]; ok {
		return w
	}
	w := NewJSONLWriter(j.baseDir, tab.PathSegment, tab.BrowserID, j.bufferSize, j.maxSizeMB)
	j.writers[tab.TargetID] = w
	slog.Info("journal writer created", "tab_id", tab.TargetID, "path_segment", tab.PathSegment, "browser_id", tab.BrowserID)
	return w
}

// Close flushes and closes every writer.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var lastErr error
	for tabID, w := range j.writers {
		if err := w.Close(); err != nil {
			slog.Error("journal writer close failed", "tab_id", tabID, "error", err)
			lastErr = err
		}
	}
	j.writers = make(map[string]*JSONLWriter)
	return lastErr
}
