package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/config"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/runstore"
)

func newRunCmd(open opener) *cobra.Command {
	var jobPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a click/screenshot job described by a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := config.LoadJob(jobPath)
			if err != nil {
				return err
			}
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			info, err := runJob(ctx, a.Service, job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s, %d/%d screenshots (%s)\n", info.ID, info.Status, info.Captured, info.Clicks, info.SaveMode)
			for _, f := range info.Files {
				fmt.Fprintln(cmd.OutOrStdout(), "  "+f)
			}
			if info.Status != runstore.StatusComplete {
				return errors.New(info.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&jobPath, "job", "j", "clickshot.yaml", "job file")
	return cmd
}

// jobService is the part of controller.Service a CLI run needs.
type jobService interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	ChooseLocation(ctx context.Context, path string) (bool, controller.Location, error)
	StartProcess(ctx context.Context, req controller.StartRequest) (runstore.RunInfo, error)
	Wait()
	Close()
	GetRun(ctx context.Context, id string) (runstore.RunInfo, error)
}

func runJob(ctx context.Context, svc jobService, job *config.JobFile) (runstore.RunInfo, error) {
	tabs, err := svc.ListTabs(ctx)
	if err != nil {
		return runstore.RunInfo{}, err
	}
	tabID, err := matchTab(tabs, job.Tab, job.TabURL)
	if err != nil {
		return runstore.RunInfo{}, err
	}

	if job.Directory != "" {
		if _, _, err := svc.ChooseLocation(ctx, job.Directory); err != nil {
			return runstore.RunInfo{}, err
		}
	}

	req := controller.StartRequest{TabID: tabID, Clicks: job.Clicks}
	if job.Next != nil {
		sel := job.Next.Selection()
		req.Next = &sel
	}
	if job.Previous != nil {
		sel := job.Previous.Selection()
		req.Previous = &sel
	}
	info, err := svc.StartProcess(ctx, req)
	if err != nil {
		return runstore.RunInfo{}, err
	}

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// Cancels the loop; the current iteration still restores hidden elements.
		svc.Close()
		<-done
	}
	return svc.GetRun(context.WithoutCancel(ctx), info.ID)
}

// matchTab picks the tab by exact id, or the single tab whose URL contains urlPart.
func matchTab(tabs []cdpcontrol.TabInfo, id, urlPart string) (string, error) {
	if id != "" {
		for _, t := range tabs {
			if t.TabID == id {
				return id, nil
			}
		}
		return "", fmt.Errorf("tab %s not found", id)
	}
	var hits []cdpcontrol.TabInfo
	for _, t := range tabs {
		if strings.Contains(t.URL, urlPart) {
			hits = append(hits, t)
		}
	}
	switch len(hits) {
	case 0:
		return "", fmt.Errorf("no tab URL contains %q", urlPart)
	case 1:
		return hits[0].TabID, nil
	}
	return "", fmt.Errorf("%d tabs match %q; set tab to one of their ids", len(hits), urlPart)
}
