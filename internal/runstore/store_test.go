package runstore

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveGetList(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "runs"))
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := RunInfo{ID: NewID(), TabID: "T1", Clicks: 3, Status: StatusComplete, StartedAt: base}
	newer := RunInfo{ID: NewID(), TabID: "T1", Clicks: 2, Status: StatusRunning, StartedAt: base.Add(time.Minute)}
	for _, r := range []RunInfo{older, newer} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save() = %v", err)
		}
	}

	got, err := store.Get(older.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.Clicks != 3 || got.Status != StatusComplete || got.Files == nil {
		t.Fatalf("Get() = %+v", got)
	}

	runs, err := store.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != newer.ID || runs[1].ID != older.ID {
		t.Fatalf("List() order = %+v, want newest first", runs)
	}

	newer.Status = StatusError
	newer.Error = "element not found"
	if err := store.Save(newer); err != nil {
		t.Fatalf("Save(update) = %v", err)
	}
	if got, _ := store.Get(newer.ID); got.Status != StatusError || got.Error != "element not found" {
		t.Fatalf("Get() after update = %+v", got)
	}
}

func TestGetRejectsBadIDs(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	for _, id := range []string{"", "../etc/passwd", "not-a-uuid"} {
		if _, err := store.Get(id); err == nil {
			t.Fatalf("Get(%q) = nil error", id)
		}
	}
	if _, err := store.Get(NewID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(unknown) = %v, want ErrNotFound", err)
	}
	if err := store.Save(RunInfo{ID: "nope"}); err == nil {
		t.Fatal("Save() with invalid id = nil error")
	}
}

func TestListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, NewID()+".json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if err := store.Save(RunInfo{ID: NewID(), Status: StatusComplete}); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	runs, err := store.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("List() returned %d runs, want 1", len(runs))
	}
	if !strings.Contains(buf.String(), "run store skipped corrupt file") {
		t.Fatalf("expected corrupt-file debug log, got %q", buf.String())
	}
}
