//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	resp := env.GET(t, "/health")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	requireField(t, result.Status, "ok", "status")
}

func TestDocs(t *testing.T) {
	resp := env.GET(t, "/docs")
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "/docs/events") {
		t.Fatal("docs page does not link the events reference")
	}
}

func TestListFrames(t *testing.T) {
	resp := env.GET(t, env.tabPath("frames"))
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		TabID  string `json:"tab_id"`
		Frames []struct {
			Index int    `json:"index"`
			URL   string `json:"url"`
		} `json:"frames"`
	}](t, resp)
	if len(result.Frames) == 0 || result.Frames[0].Index != 0 {
		t.Fatalf("frames = %+v, want main frame at index 0", result.Frames)
	}
	t.Logf("tab %s has %d frame(s)", result.TabID, len(result.Frames))
}

func TestUnknownTab(t *testing.T) {
	resp := env.GET(t, "/api/v1/tabs/NO-SUCH-TAB/frames")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestShowElementIsHarmless(t *testing.T) {
	resp := env.POST(t, env.tabPath("elements/show"), map[string]any{"selector": "body"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestHideMissingElement(t *testing.T) {
	resp := env.POST(t, env.tabPath("elements/hide"), map[string]any{"selector": "#clickshot-no-such-element"})
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}
