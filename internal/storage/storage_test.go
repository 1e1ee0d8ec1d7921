package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/clickshot/internal/types"
)

func TestTransformURLToPathSegment(t *testing.T) {
	tests := map[string]string{
		"https://example.com/":                "root",
		"https://example.com":                 "root",
		"https://example.com/products/list/":  "products_list",
		"https://example.com/a/b?page=2#frag": "a_b",
		"https://example.com/weird:name/x*y":  "weird_name_x_y",
	}
	for in, want := range tests {
		got, err := TransformURLToPathSegment(in)
		if err != nil {
			t.Fatalf("TransformURLToPathSegment(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("TransformURLToPathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTabInfoFor(t *testing.T) {
	info := TabInfoFor("B0D5A8E8C1F2", "https://shop.example/products/list")
	want := types.TabInfo{TargetID: "B0D5A8E8C1F2", URL: "https://shop.example/products/list", PathSegment: "products_list", BrowserID: "B0D5A8E8"}
	if info != want {
		t.Fatalf("TabInfoFor() = %+v, want %+v", info, want)
	}
	if got := BrowserIDFromTargetID("abc"); got != "abc" {
		t.Fatalf("BrowserIDFromTargetID(short) = %q", got)
	}
}

func TestDownloadsWriterUniquifies(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Downloads")
	w := NewDownloadsWriter(dir)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := w.Save("shot.png", []byte{byte(i)})
		if err != nil {
			t.Fatalf("Save() = %v", err)
		}
		paths = append(paths, filepath.Base(p))
	}
	want := []string{"shot.png", "shot (1).png", "shot (2).png"}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Save() names = %v, want %v", paths, want)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "shot (1).png"))
	if err != nil || len(data) != 1 || data[0] != 1 {
		t.Fatalf("second file contents = %v, %v", data, err)
	}

	if _, err := w.Save("../escape.png", nil); err == nil {
		t.Fatal("Save() with path traversal = nil error")
	}
}

func TestDownloadsWriterSaveAsync(t *testing.T) {
	dir := t.TempDir()
	w := NewDownloadsWriter(dir)
	for i := 0; i < 4; i++ {
		w.SaveAsync("page.png", []byte("png"))
	}
	w.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("downloads dir has %d files, want 4", len(entries))
	}
}

func TestJournalWritesPerTabFiles(t *testing.T) {
	base := t.TempDir()
	j := NewJournal(base, 16, 10)
	tab := TabInfoFor("B0D5A8E8C1F2", "https://example.com/gallery/cats")

	j.Record(tab, JournalEntry{RunID: "r1", Event: "process-started"})
	j.Record(tab, JournalEntry{RunID: "r1", Event: "capture-saved", Iteration: 1, File: "screenshot-x-click-1.png"})
	if err := j.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(base, date, "gallery_cats", "B0D5A8E8.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var entries []JournalEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("journal has %d entries, want 2", len(entries))
	}
	if entries[1].Event != "capture-saved" || entries[1].TabID != "B0D5A8E8C1F2" || entries[1].Time.IsZero() {
		t.Fatalf("entry = %+v", entries[1])
	}
}

func TestJSONLWriterRejectsAfterClose(t *testing.T) {
	w := NewJSONLWriter(t.TempDir(), "x", "f", 1, 1)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
	if err := w.Write(map[string]int{"a": 1}); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("Write() after close = %v, want closed error", err)
	}
}
