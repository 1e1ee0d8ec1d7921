package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/clickshot/internal/api"
	"github.com/dgnsrekt/clickshot/internal/app"
	"github.com/dgnsrekt/clickshot/internal/config"
	"github.com/dgnsrekt/clickshot/internal/netutil"
)

func main() {
	cfg, err := config.LoadController()
	if err != nil {
		slog.Error("failed to load controller config", "error", err)
		os.Exit(1)
	}

	if err := app.SetupLogger(cfg.LogLevel, cfg.LogFile, os.Stdout); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("controller config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.ControllerCDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"state_backend", cfg.StateBackend,
		"downloads_dir", cfg.DownloadsDir,
		"runs_dir", cfg.RunsDir,
		"journal_dir", cfg.JournalDir,
		"click_settle_ms", cfg.ClickSettleMS,
		"render_settle_ms", cfg.RenderSettleMS,
		"bridge_idle_timeout", cfg.BridgeIdleTimeout,
		"ntfy", cfg.NtfyEndpoint != "",
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind controller address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancelStart()
	if err != nil {
		_ = ln.Close()
		slog.Error("failed to start controller", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{Handler: api.NewServer(a.Service, a.Events), ReadHeaderTimeout: 10 * time.Second}
	bindAddr := ln.Addr().String()

	go func() {
		slog.Info("controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("controller server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("controller shutdown failed", "error", err)
	}
}
