package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/config"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/runstore"
)

var testTabs = []cdpcontrol.TabInfo{
	{TabID: "AAA", URL: "https://shop.example.com/gallery?page=1"},
	{TabID: "BBB", URL: "https://news.example.com/"},
	{TabID: "CCC", URL: "https://news.example.com/archive"},
}

func TestMatchTab(t *testing.T) {
	cases := []struct {
		id, url string
		want    string
		wantErr string
	}{
		{id: "BBB", want: "BBB"},
		{id: "ZZZ", wantErr: "not found"},
		{url: "gallery", want: "AAA"},
		{url: "news.example", wantErr: "2 tabs match"},
		{url: "nowhere", wantErr: "no tab URL"},
	}
	for _, tc := range cases {
		got, err := matchTab(testTabs, tc.id, tc.url)
		if tc.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("matchTab(%q, %q) error = %v, want %q", tc.id, tc.url, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("matchTab(%q, %q) = %q, %v; want %q", tc.id, tc.url, got, err, tc.want)
		}
	}
}

type fakeJobService struct {
	chosen string
	req    controller.StartRequest
	waited bool
}

func (f *fakeJobService) ListTabs(context.Context) ([]cdpcontrol.TabInfo, error) {
	return testTabs, nil
}
func (f *fakeJobService) ChooseLocation(_ context.Context, path string) (bool, controller.Location, error) {
	f.chosen = path
	return true, controller.Location{SavedDirectoryName: "shots", Granted: true, Mode: "directory"}, nil
}
func (f *fakeJobService) StartProcess(_ context.Context, req controller.StartRequest) (runstore.RunInfo, error) {
	f.req = req
	return runstore.RunInfo{ID: "run-1", TabID: req.TabID, Clicks: req.Clicks, Status: runstore.StatusRunning}, nil
}
func (f *fakeJobService) Wait()  { f.waited = true }
func (f *fakeJobService) Close() {}
func (f *fakeJobService) GetRun(_ context.Context, id string) (runstore.RunInfo, error) {
	return runstore.RunInfo{ID: id, TabID: f.req.TabID, Clicks: f.req.Clicks, Captured: f.req.Clicks, Status: runstore.StatusComplete}, nil
}

func TestRunJob(t *testing.T) {
	svc := &fakeJobService{}
	job := &config.JobFile{
		TabURL:    "gallery",
		Clicks:    3,
		Next:      &config.JobSelection{Selector: "a.next", Frame: 1},
		Directory: "/tmp/shots",
	}

	info, err := runJob(context.Background(), svc, job)
	if err != nil {
		t.Fatalf("runJob() error = %v", err)
	}
	if !svc.waited || info.Status != runstore.StatusComplete || info.Captured != 3 {
		t.Fatalf("runJob() = %+v waited=%v", info, svc.waited)
	}
	if svc.chosen != "/tmp/shots" {
		t.Fatalf("directory = %q", svc.chosen)
	}
	if svc.req.TabID != "AAA" || svc.req.Next == nil || svc.req.Next.FrameID != 1 || svc.req.Previous != nil {
		t.Fatalf("start request = %+v", svc.req)
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, sub := range []string{"tabs", "run", "record"} {
		if !strings.Contains(out.String(), sub) {
			t.Fatalf("help output missing %q: %s", sub, out.String())
		}
	}
}

func TestRecordRejectsUnknownMode(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"record", "sideways", "--tab", "AAA"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown record mode") {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	page := filepath.Join(t.TempDir(), "page.html")
	body := `<html><body><nav><a>prev</a><a id="more">next</a></nav></body></html>`
	if err := os.WriteFile(page, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"check", page, "--css", "nav a"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"2 match(es)", "html > body > nav > a", "a#more"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"check", page, "--xpath", "//button"})
	if err := root.Execute(); err == nil {
		t.Fatal("check with no matches succeeded")
	}
}
