package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/clickshot/internal/capture"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/runstore"
	"github.com/dgnsrekt/clickshot/internal/state"
	"github.com/dgnsrekt/clickshot/internal/storage"
	"github.com/dgnsrekt/clickshot/internal/types"
)

// ProcessStartedAck is returned as soon as a run has been scheduled.
const ProcessStartedAck = "Process started in background."

const stateTimeout = 5 * time.Second

// StartRequest asks for a capture run. Nil selections fall back to the
// ones stored for the tab.
type StartRequest struct {
	TabID    string
	Clicks   int
	Next     *types.ElementSelection
	Previous *types.ElementSelection
}

// StartProcess validates the request, claims the tab and runs the loop in
// the background. A second run on the same tab is rejected with
// RUN_IN_PROGRESS until the first one finishes.
func (s *Service) StartProcess(ctx context.Context, req StartRequest) (runstore.RunInfo, error) {
	job, err := s.buildJob(ctx, req)
	if err != nil {
		return runstore.RunInfo{}, err
	}
	if err := s.requireTab(ctx, job.TabID); err != nil {
		return runstore.RunInfo{}, err
	}

	lock := s.runLock(job.TabID)
	if !lock.TryLock() {
		return runstore.RunInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeRunInProgress, Message: fmt.Sprintf("a run is already in progress on tab %s", job.TabID)}
	}

	dirName, err := state.DirectoryName(ctx, s.store)
	if err != nil {
		lock.Unlock()
		return runstore.RunInfo{}, err
	}
	sink := capture.SelectSink(dirName, s.locations, s.downloads)

	info := runstore.RunInfo{
		ID:        runstore.NewID(),
		TabID:     job.TabID,
		Clicks:    job.ClickCount,
		Status:    runstore.StatusRunning,
		SaveMode:  sink.Mode(),
		Files:     []string{},
		StartedAt: time.Now().UTC(),
	}
	if s.runs != nil {
		if err := s.runs.Save(info); err != nil {
			lock.Unlock()
			return runstore.RunInfo{}, err
		}
	}

	s.publish(events.TagProcessStarted, job.TabID, map[string]any{"run_id": info.ID, "clicks": job.ClickCount, "save_mode": info.SaveMode})
	s.record(job.TabID, storage.JournalEntry{RunID: info.ID, Event: events.TagProcessStarted, Selector: job.Next.Selector})

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer lock.Unlock()
		s.execute(info, job, sink)
	}()
	return info, nil
}

func (s *Service) buildJob(ctx context.Context, req StartRequest) (types.CaptureJob, error) {
	if err := s.requireNonEmpty(req.TabID, "tab_id"); err != nil {
		return types.CaptureJob{}, err
	}
	tabID := strings.TrimSpace(req.TabID)
	job := types.CaptureJob{TabID: tabID, ClickCount: req.Clicks}

	if req.Next != nil {
		job.Next = *req.Next
	} else {
		sel, found, err := state.LoadSelection(ctx, s.store, types.RoleNext, tabID)
		if err != nil {
			return types.CaptureJob{}, err
		}
		if !found {
			return types.CaptureJob{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeSelectionNotFound, Message: "no next element recorded for tab " + tabID}
		}
		job.Next = sel
	}

	if req.Previous != nil {
		prev := *req.Previous
		job.Prev = &prev
	} else {
		sel, found, err := state.LoadSelection(ctx, s.store, types.RolePrevious, tabID)
		if err != nil {
			return types.CaptureJob{}, err
		}
		if found {
			job.Prev = &sel
		}
	}

	if err := job.Validate(); err != nil {
		return types.CaptureJob{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error()}
	}
	return job, nil
}

func (s *Service) execute(info runstore.RunInfo, job types.CaptureJob, sink capture.Sink) {
	var mu sync.Mutex
	opts := s.capture
	userStep := opts.OnStep
	opts.OnStep = func(st capture.Step) {
		entry := storage.JournalEntry{
			RunID:     info.ID,
			Event:     st.Name,
			Iteration: st.Iteration,
			File:      st.File,
			Size:      st.Size,
			SHA256:    st.Digest,
			Selector:  st.Selector,
		}
		if st.Err != nil {
			entry.Error = st.Err.Error()
		}
		s.record(job.TabID, entry)

		if st.Name == capture.StepSaved {
			mu.Lock()
			info.Captured++
			info.Files = append(info.Files, st.File)
			snapshot := info
			mu.Unlock()
			s.saveRun(snapshot)
		}
		if userStep != nil {
			userStep(st)
		}
	}

	res := capture.NewRunner(s.browser, s.notifier, opts).Run(s.baseCtx, job, sink)

	mu.Lock()
	defer mu.Unlock()
	now := time.Now().UTC()
	info.FinishedAt = &now
	info.Captured = res.Captured
	info.Files = append([]string{}, res.Files...)
	if res.Err != nil {
		info.Status = runstore.StatusError
		info.Error = res.Err.Error()
		s.record(job.TabID, storage.JournalEntry{RunID: info.ID, Event: events.TagProcessError, Error: info.Error})
	} else {
		info.Status = runstore.StatusComplete
		s.record(job.TabID, storage.JournalEntry{RunID: info.ID, Event: events.TagProcessComplete})
	}
	s.saveRun(info)
	slog.Info("run finished", "run_id", info.ID, "tab_id", info.TabID, "status", info.Status, "captured", info.Captured)
}

func (s *Service) saveRun(info runstore.RunInfo) {
	if s.runs == nil {
		return
	}
	logErr("failed to save run summary", s.runs.Save(info), "run_id", info.ID)
}

func (s *Service) runLock(tabID string) *sync.Mutex {
	m, _ := s.runLocks.LoadOrStore(tabID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Running reports whether a run currently holds the tab.
func (s *Service) Running(tabID string) bool {
	lock := s.runLock(tabID)
	if lock.TryLock() {
		lock.Unlock()
		return false
	}
	return true
}

// Wait blocks until every started run has finished.
func (s *Service) Wait() { s.runWG.Wait() }

func (s *Service) ListRuns(_ context.Context) ([]runstore.RunInfo, error) {
	if s.runs == nil {
		return []runstore.RunInfo{}, nil
	}
	return s.runs.List()
}

func (s *Service) GetRun(_ context.Context, id string) (runstore.RunInfo, error) {
	if err := s.requireNonEmpty(id, "run id"); err != nil {
		return runstore.RunInfo{}, err
	}
	if s.runs == nil {
		return runstore.RunInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeRunNotFound, Message: "run " + id + " not found"}
	}
	info, err := s.runs.Get(strings.TrimSpace(id))
	if errors.Is(err, runstore.ErrNotFound) || errors.Is(err, runstore.ErrInvalidID) {
		return runstore.RunInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeRunNotFound, Message: "run " + id + " not found", Cause: err}
	}
	return info, err
}

// ActiveRuns counts tabs with a run in progress.
func (s *Service) ActiveRuns() int {
	n := 0
	s.runLocks.Range(func(k, _ any) bool {
		if s.Running(k.(string)) {
			n++
		}
		return true
	})
	return n
}
