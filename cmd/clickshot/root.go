package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/clickshot/internal/app"
	"github.com/dgnsrekt/clickshot/internal/config"
)

// connectTimeout bounds connecting to Chromium and the state backend.
const connectTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "clickshot",
		Short:         "Click through a paginated page and screenshot every step.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also print logs to stderr")

	open := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := config.LoadController()
		if err != nil {
			return nil, err
		}
		var echo io.Writer = io.Discard
		if verbose {
			echo = os.Stderr
		}
		if err := app.SetupLogger(cfg.LogLevel, cfg.LogFile, echo); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		defer cancel()
		return app.New(ctx, cfg)
	}

	root.AddCommand(newTabsCmd(open), newRunCmd(open), newRecordCmd(open), newCheckCmd())
	return root
}

type opener func(cmd *cobra.Command) (*app.App, error)
