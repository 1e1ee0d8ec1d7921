//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type selection struct {
	Selector string `json:"selector"`
	FrameID  int    `json:"frameId"`
}

func TestSelectionLifecycle(t *testing.T) {
	resp := env.PUT(t, env.tabPath("selections/next"), map[string]any{"selector": "  body  "})
	requireStatus(t, resp, http.StatusOK)
	stored := decodeJSON[selection](t, resp)
	requireField(t, stored.Selector, "body", "selector")

	resp = env.GET(t, env.tabPath("selections"))
	requireStatus(t, resp, http.StatusOK)
	got := decodeJSON[struct {
		Next     *selection `json:"next"`
		Previous *selection `json:"previous"`
	}](t, resp)
	if got.Next == nil || got.Next.Selector != "body" {
		t.Fatalf("next = %+v, want body", got.Next)
	}

	resp = env.POST(t, env.tabPath("selections/next/resolve"), nil)
	requireStatus(t, resp, http.StatusOK)
	res := decodeJSON[struct {
		Tag        string `json:"tag"`
		MatchCount int    `json:"match_count"`
	}](t, resp)
	requireField(t, res.Tag, "body", "tag")
	requireField(t, res.MatchCount, 1, "match_count")

	resp = env.DELETE(t, env.tabPath("selections/next"))
	requireStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = env.POST(t, env.tabPath("selections/next/resolve"), nil)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestSelectionBadRole(t *testing.T) {
	resp := env.PUT(t, env.tabPath("selections/sideways"), map[string]any{"selector": "body"})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRecorderInstallAndCancel(t *testing.T) {
	resp := env.POST(t, env.tabPath("selection/start-recording-next"), nil)
	requireStatus(t, resp, http.StatusOK)
	started := decodeJSON[struct {
		Mode   string `json:"mode"`
		Frames int    `json:"frames"`
	}](t, resp)
	if started.Frames < 1 {
		t.Fatalf("recorder installed in %d frames", started.Frames)
	}

	resp = env.POST(t, env.tabPath("selection/cancel"), nil)
	requireStatus(t, resp, http.StatusOK)
	cancelled := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	requireField(t, cancelled.Status, "cancelled", "status")
}
