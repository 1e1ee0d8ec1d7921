package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ControllerConfig holds configuration for the clickshot controller and CLI.
type ControllerConfig struct {
	CDPAddress       string
	CDPPort          int
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string
	TabURLFilter     string
	EvalTimeoutMS    int
	LogLevel         string
	LogFile          string

	StateBackend  string // "file" or "redis"
	StateFile     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DownloadsDir string
	RunsDir      string
	JournalDir   string

	ClickSettleMS     int
	RenderSettleMS    int
	BridgeIdleTimeout time.Duration

	NtfyEndpoint string

	BrowserAutoLaunch bool
	BrowserPath       string
	BrowserProfileDir string
	BrowserStartURL   string
}

// LoadController reads controller configuration from environment variables
// and an optional .env file.
func LoadController() (*ControllerConfig, error) {
	loadDotEnv()

	cfg := &ControllerConfig{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:         getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8188"),
		PortAutoFallback: getEnvBoolOrDefault("PORT_AUTO_FALLBACK", true),
		PortCandidates:   splitList(getEnvOrDefault("PORT_CANDIDATES", "127.0.0.1:8189,127.0.0.1:8190,127.0.0.1:8191")),
		TabURLFilter:     getEnvOrDefault("TAB_URL_FILTER", ""),
		EvalTimeoutMS:    getEnvIntOrDefault("EVAL_TIMEOUT_MS", 5000),
		LogLevel:         strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:          getEnvPathOrDefault("LOG_FILE", "logs/clickshot.log"),

		StateBackend:  strings.ToLower(getEnvOrDefault("STATE_BACKEND", "file")),
		StateFile:     getEnvPathOrDefault("STATE_FILE", "./data/state.json"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "clickshot:"),

		DownloadsDir: getEnvPathOrDefault("DOWNLOADS_DIR", "~/Downloads"),
		RunsDir:      getEnvPathOrDefault("RUNS_DIR", "./data/runs"),
		JournalDir:   getEnvPathOrDefault("JOURNAL_DIR", "./data/journal"),

		ClickSettleMS:     getEnvIntOrDefault("CLICK_SETTLE_MS", 1000),
		RenderSettleMS:    getEnvIntOrDefault("RENDER_SETTLE_MS", 50),
		BridgeIdleTimeout: time.Duration(getEnvIntOrDefault("BRIDGE_IDLE_TIMEOUT_SEC", 0)) * time.Second,

		NtfyEndpoint: getEnvOrDefault("NTFY_ENDPOINT", ""),

		BrowserAutoLaunch: getEnvBoolOrDefault("BROWSER_AUTO_LAUNCH", false),
		BrowserPath:       getEnvOrDefault("BROWSER_PATH", ""),
		BrowserProfileDir: getEnvPathOrDefault("BROWSER_PROFILE_DIR", "./data/chromium-profile"),
		BrowserStartURL:   getEnvOrDefault("BROWSER_START_URL", "about:blank"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.ClickSettleMS < 0 {
		cfg.ClickSettleMS = 0
	}
	if cfg.RenderSettleMS < 0 {
		cfg.RenderSettleMS = 0
	}
	if cfg.StateBackend != "file" && cfg.StateBackend != "redis" {
		return nil, fmt.Errorf("STATE_BACKEND must be \"file\" or \"redis\", got %q", cfg.StateBackend)
	}
	return cfg, nil
}

// ControllerCDPURL returns CDP endpoint URL for controller use.
func (c *ControllerConfig) ControllerCDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// EvalTimeout is EvalTimeoutMS as a duration.
func (c *ControllerConfig) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// ClickSettle is how long the loop waits after a click for the page to update.
func (c *ControllerConfig) ClickSettle() time.Duration {
	return time.Duration(c.ClickSettleMS) * time.Millisecond
}

// RenderSettle is how long the loop waits after hiding elements before capturing.
func (c *ControllerConfig) RenderSettle() time.Duration {
	return time.Duration(c.RenderSettleMS) * time.Millisecond
}
