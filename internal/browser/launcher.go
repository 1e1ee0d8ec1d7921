// Package browser starts a local Chromium with remote debugging enabled when
// none is listening yet.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

const defaultReadyTimeout = 15 * time.Second

// Config holds browser launch settings.
type Config struct {
	CDPAddress   string
	CDPPort      int
	BrowserPath  string // optional; detected from PATH when empty
	ProfileDir   string
	StartURL     string
	WindowSize   string
	ReadyTimeout time.Duration
}

// Launcher owns a browser process it started.
type Launcher struct {
	cfg Config
	cmd *exec.Cmd
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1280,900"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	return &Launcher{cfg: cfg}
}

var browserNames = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// findBrowser resolves the configured path or the first known binary on PATH.
func findBrowser(override string) (string, error) {
	if override != "" {
		if path, err := exec.LookPath(override); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("browser %q not found", override)
	}
	for _, name := range browserNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		for _, p := range []string{
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		} {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", errors.New("no Chromium or Chrome binary found; set BROWSER_PATH")
}

func (l *Launcher) hostPort() string {
	return net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort))
}

func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(l.cfg.CDPPort),
		"--remote-debugging-address=" + l.cfg.CDPAddress,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--window-size=" + l.cfg.WindowSize,
	}
	if l.cfg.ProfileDir != "" {
		args = append(args, "--user-data-dir="+l.cfg.ProfileDir)
	}
	if l.cfg.StartURL != "" {
		args = append(args, l.cfg.StartURL)
	}
	return args
}

// Launch starts the browser unless something already answers on the CDP port.
func (l *Launcher) Launch(ctx context.Context) error {
	if conn, err := net.DialTimeout("tcp", l.hostPort(), time.Second); err == nil {
		_ = conn.Close()
		slog.Info("browser already listening, not launching", "addr", l.hostPort())
		return nil
	}

	path, err := findBrowser(l.cfg.BrowserPath)
	if err != nil {
		return err
	}
	if l.cfg.ProfileDir != "" {
		if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
	}

	l.cmd = exec.Command(path, l.args()...)
	l.cmd.Stdout = os.Stdout
	l.cmd.Stderr = os.Stderr
	if err := l.cmd.Start(); err != nil {
		l.cmd = nil
		return fmt.Errorf("start browser: %w", err)
	}
	slog.Info("browser process started", "path", path, "pid", l.cmd.Process.Pid)

	if err := waitForCDP(ctx, "http://"+l.hostPort()+"/json/version", l.cfg.ReadyTimeout); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "addr", l.hostPort())
	return nil
}

// waitForCDP polls the version endpoint until it answers 200.
func waitForCDP(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready: %w", url, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Started reports whether this launcher owns a browser process.
func (l *Launcher) Started() bool {
	return l.cmd != nil
}

// Stop sends SIGTERM to a browser this launcher started, then SIGKILL after 5s.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	pid := l.cmd.Process.Pid
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("browser stopped", "pid", pid)
	case <-time.After(5 * time.Second):
		slog.Warn("browser ignored SIGTERM, killing", "pid", pid)
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.cmd = nil
}
