//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	Client  *http.Client
	TabID   string // discovered from /api/v1/tabs
	TabURL  string
	SaveDir string // temp dir granted during location tests
}

// discoverTab picks the first tab whose URL contains match, or the first tab.
func (e *Env) discoverTab(match string) error {
	resp, err := e.Client.Get(e.BaseURL + "/api/v1/tabs")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()

	var listing struct {
		Tabs []struct {
			TabID string `json:"tab_id"`
			URL   string `json:"url"`
		} `json:"tabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("decode tabs: %w", err)
	}
	for _, tab := range listing.Tabs {
		if match == "" || strings.Contains(tab.URL, match) {
			e.TabID, e.TabURL = tab.TabID, tab.URL
			return nil
		}
	}
	return fmt.Errorf("no tab matching %q at %s", match, e.BaseURL)
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("CLICKSHOT_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8188"
	}

	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}

	if err := env.discoverTab(os.Getenv("CLICKSHOT_TAB_URL")); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: using tab %s (%s) at %s\n", env.TabID, env.TabURL, env.BaseURL)

	dir, err := os.MkdirTemp("", "clickshot-integration-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration: temp dir: %v\n", err)
		os.Exit(1)
	}
	env.SaveDir = dir

	code := m.Run()
	teardown()
	os.Exit(code)
}

// teardown forgets the test grant and the test selections. Errors are logged
// but not fatal.
func teardown() {
	for _, path := range []string{
		"/api/v1/location",
		env.tabPath("selections/next"),
		env.tabPath("selections/previous"),
	} {
		req, err := http.NewRequest(http.MethodDelete, env.BaseURL+path, nil)
		if err != nil {
			continue
		}
		resp, err := env.Client.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "integration: teardown %s: %v\n", path, err)
			continue
		}
		resp.Body.Close()
	}
	_ = os.RemoveAll(env.SaveDir)
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) PUT(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPut, path, body)
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// --- Assertion helpers ---

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

// --- Tab path helper ---

func (e *Env) tabPath(suffix string) string {
	return fmt.Sprintf("/api/v1/tabs/%s/%s", e.TabID, suffix)
}
