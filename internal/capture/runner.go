// Package capture runs the click, screenshot and save loop against one tab.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/types"
)

const (
	DefaultClickSettle  = 1000 * time.Millisecond
	DefaultRenderSettle = 50 * time.Millisecond
)

// PageDriver is the per-tab command surface the loop needs.
type PageDriver interface {
	ClickElement(ctx context.Context, tabID, selector string, frameID int) (string, error)
	HideElement(ctx context.Context, tabID, selector string, frameID int) (string, error)
	ShowElement(ctx context.Context, tabID, selector string, frameID int) (string, error)
	CaptureVisible(ctx context.Context, tabID string) ([]byte, error)
}

// Notifier receives the process-complete and process-error notifications.
type Notifier interface {
	Notify(ctx context.Context, tag, tabID, message string)
}

// Step names reported to Options.OnStep.
const (
	StepClicked      = "clicked"
	StepHideSkipped  = "hide-skipped"
	StepSaved        = "saved"
	StepShowFailed   = "show-failed"
	StepIterationErr = "iteration-error"
)

// Step is a progress record emitted while a run executes.
type Step struct {
	Iteration int
	Name      string
	Selector  string
	File      string
	Digest    string
	Size      int
	Err       error
}

// Options tunes a Runner. Zero values take the defaults.
type Options struct {
	ClickSettle  time.Duration
	RenderSettle time.Duration
	// Now and Sleep are replaced in tests.
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	OnStep func(Step)
}

// Runner executes capture jobs.
type Runner struct {
	driver   PageDriver
	notifier Notifier
	opts     Options
}

// Result summarises a finished run.
type Result struct {
	Captured int
	Files    []string
	Err      error
}

func NewRunner(driver PageDriver, notifier Notifier, opts Options) *Runner {
	if opts.ClickSettle <= 0 {
		opts.ClickSettle = DefaultClickSettle
	}
	if opts.RenderSettle <= 0 {
		opts.RenderSettle = DefaultRenderSettle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Runner{driver: driver, notifier: notifier, opts: opts}
}

// Run performs job.ClickCount iterations, saving each screenshot through sink.
// The first mandatory failure stops the loop after the iteration's elements
// have been shown again; the error is returned in Result.Err.
func (r *Runner) Run(ctx context.Context, job types.CaptureJob, sink Sink) Result {
	var res Result
	if err := job.Validate(); err != nil {
		res.Err = &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error()}
		return res
	}

	logger := slog.With("tab_id", job.TabID, "clicks", job.ClickCount, "save_mode", sink.Mode())
	logger.Info("capture run started")

	for i := 1; i <= job.ClickCount; i++ {
		file, err := r.iteration(ctx, logger, job, sink, i)
		if err != nil {
			res.Err = err
			logger.Error("capture iteration failed", "iteration", i, "error", err)
			r.step(Step{Iteration: i, Name: StepIterationErr, Err: err})
			r.notify(ctx, events.TagProcessError, job.TabID, fmt.Sprintf("An error occurred during click %d: %v", i, err))
			return res
		}
		res.Captured++
		res.Files = append(res.Files, file)
	}

	logger.Info("capture run complete", "captured", res.Captured)
	r.notify(ctx, events.TagProcessComplete, job.TabID, fmt.Sprintf("Finished %d clicks and screenshots.", job.ClickCount))
	return res
}

func (r *Runner) iteration(ctx context.Context, logger *slog.Logger, job types.CaptureJob, sink Sink, i int) (file string, err error) {
	var hidden []types.ElementSelection
	defer func() {
		r.showAll(ctx, logger, job.TabID, hidden, i)
	}()

	if _, err := r.driver.ClickElement(ctx, job.TabID, job.Next.Selector, job.Next.FrameID); err != nil {
		return "", fmt.Errorf("click %q: %w", job.Next.Selector, err)
	}
	r.step(Step{Iteration: i, Name: StepClicked, Selector: job.Next.Selector})

	if err := r.opts.Sleep(ctx, r.opts.ClickSettle); err != nil {
		return "", err
	}

	if _, err := r.driver.HideElement(ctx, job.TabID, job.Next.Selector, job.Next.FrameID); err != nil {
		if !isElementNotFound(err) {
			return "", fmt.Errorf("hide next %q: %w", job.Next.Selector, err)
		}
		logger.Warn("next element not found for hiding", "iteration", i, "selector", job.Next.Selector)
		r.step(Step{Iteration: i, Name: StepHideSkipped, Selector: job.Next.Selector, Err: err})
	} else {
		hidden = append(hidden, job.Next)
	}

	if job.Prev != nil {
		if _, err := r.driver.HideElement(ctx, job.TabID, job.Prev.Selector, job.Prev.FrameID); err != nil {
			logger.Info("could not hide previous element, it may not be visible", "iteration", i, "selector", job.Prev.Selector, "error", err)
			r.step(Step{Iteration: i, Name: StepHideSkipped, Selector: job.Prev.Selector, Err: err})
		} else {
			hidden = append(hidden, *job.Prev)
		}
	}

	if err := r.opts.Sleep(ctx, r.opts.RenderSettle); err != nil {
		return "", err
	}

	png, err := r.driver.CaptureVisible(ctx, job.TabID)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}

	file = Filename(r.opts.Now(), i)
	if err := sink.Save(ctx, file, png); err != nil {
		return "", fmt.Errorf("save %s: %w", file, err)
	}
	size, digest := pngDigest(png)
	r.step(Step{Iteration: i, Name: StepSaved, File: file, Size: size, Digest: digest})
	return file, nil
}

// showAll restores visibility with a context that survives cancellation of
// the run, so the page is never left with hidden controls.
func (r *Runner) showAll(ctx context.Context, logger *slog.Logger, tabID string, hidden []types.ElementSelection, i int) {
	if len(hidden) == 0 {
		return
	}
	showCtx := context.WithoutCancel(ctx)
	for _, sel := range hidden {
		if _, err := r.driver.ShowElement(showCtx, tabID, sel.Selector, sel.FrameID); err != nil {
			logger.Error("failed to re-show element", "iteration", i, "selector", sel.Selector, "error", err)
			r.step(Step{Iteration: i, Name: StepShowFailed, Selector: sel.Selector, Err: err})
		}
	}
}

func (r *Runner) step(s Step) {
	if r.opts.OnStep != nil {
		r.opts.OnStep(s)
	}
}

func (r *Runner) notify(ctx context.Context, tag, tabID, message string) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, tag, tabID, message)
	}
}

// Filename returns the screenshot name for iteration i taken at t.
func Filename(t time.Time, i int) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("screenshot-%s-click-%d.png", ts, i)
}

func isElementNotFound(err error) bool {
	var coded *cdpcontrol.CodedError
	return errors.As(err, &coded) && coded.Code == cdpcontrol.CodeElementNotFound
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
