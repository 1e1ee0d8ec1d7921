// Package bridge owns the directory the user granted for screenshots. A
// single worker goroutine holds the open os.Root; callers talk to it with
// request messages that each get exactly one reply.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrDirectoryNotGranted means a save was requested while no directory is open.
	ErrDirectoryNotGranted = errors.New("no directory granted")
	// ErrUserAborted means the directory picker was dismissed.
	ErrUserAborted = errors.New("directory selection aborted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge closed")
)

type opKind int

const (
	opSelect opKind = iota
	opSave
	opStatus
	opDrop
)

type request struct {
	op       opKind
	path     string
	filename string
	data     []byte
	reply    chan response
}

type response struct {
	name string
	ok   bool
	err  error
}

// Bridge starts its worker lazily on the first request.
type Bridge struct {
	idleTimeout time.Duration

	group  singleflight.Group
	starts atomic.Int32

	mu     sync.Mutex
	w      *worker
	closed bool
	wg     sync.WaitGroup
}

// New returns a Bridge. A positive idleTimeout stops the worker, and with it
// the grant, after that long without requests.
func New(idleTimeout time.Duration) *Bridge {
	return &Bridge{idleTimeout: idleTimeout}
}

// SelectDirectory opens path as the new save location and returns its display
// name. An empty path is a dismissed picker and yields ErrUserAborted.
func (b *Bridge) SelectDirectory(ctx context.Context, path string) (string, error) {
	if path == "" {
		slog.Info("bridge directory selection aborted")
		return "", ErrUserAborted
	}
	resp, err := b.do(ctx, request{op: opSelect, path: path})
	if err != nil {
		return "", err
	}
	return resp.name, resp.err
}

// SaveFile creates or truncates filename inside the granted directory.
func (b *Bridge) SaveFile(ctx context.Context, filename string, data []byte) error {
	resp, err := b.do(ctx, request{op: opSave, filename: filename, data: data})
	if err != nil {
		return err
	}
	return resp.err
}

// Granted reports the display name of the live grant. It never starts the worker.
func (b *Bridge) Granted(ctx context.Context) (string, bool) {
	b.mu.Lock()
	running := b.w != nil
	b.mu.Unlock()
	if !running {
		return "", false
	}
	resp, err := b.do(ctx, request{op: opStatus})
	if err != nil {
		return "", false
	}
	return resp.name, resp.ok
}

// Drop releases the grant, if any.
func (b *Bridge) Drop(ctx context.Context) error {
	b.mu.Lock()
	running := b.w != nil
	b.mu.Unlock()
	if !running {
		return nil
	}
	resp, err := b.do(ctx, request{op: opDrop})
	if err != nil {
		return err
	}
	return resp.err
}

// Close stops the worker and waits for it to exit.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	w := b.w
	b.mu.Unlock()
	if w != nil {
		w.stop()
	}
	b.wg.Wait()
	return nil
}

// do sends req to the worker. A worker that exits (idle) between ensure and
// send is replaced once.
func (b *Bridge) do(ctx context.Context, req request) (response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		w, err := b.ensure(ctx)
		if err != nil {
			return response{}, err
		}
		req.reply = make(chan response, 1)
		select {
		case w.reqs <- req:
		case <-w.done:
			continue
		case <-ctx.Done():
			return response{}, ctx.Err()
		}
		select {
		case resp := <-req.reply:
			return resp, nil
		case <-ctx.Done():
			return response{}, ctx.Err()
		}
	}
	return response{}, errors.New("bridge worker unavailable")
}

// ensure returns the running worker, starting it if needed. Concurrent
// callers share one start.
func (b *Bridge) ensure(ctx context.Context) (*worker, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if w := b.w; w != nil && !w.exited() {
		b.mu.Unlock()
		return w, nil
	}
	b.mu.Unlock()

	ch := b.group.DoChan("worker", func() (any, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return nil, ErrClosed
		}
		if b.w != nil && !b.w.exited() {
			return b.w, nil
		}
		w := newWorker(b.idleTimeout)
		b.w = w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			w.run()
			b.mu.Lock()
			if b.w == w {
				b.w = nil
			}
			b.mu.Unlock()
		}()
		slog.Debug("bridge worker started", "idle_timeout", b.idleTimeout, "starts", b.starts.Add(1))
		return w, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*worker), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type worker struct {
	idleTimeout time.Duration
	reqs        chan request
	quit        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once

	root *os.Root // owned by run
	name string
}

func newWorker(idle time.Duration) *worker {
	return &worker{
		idleTimeout: idle,
		reqs:        make(chan request),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (w *worker) stop() { w.stopOnce.Do(func() { close(w.quit) }) }

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *worker) run() {
	defer close(w.done)
	defer w.release()

	var idle <-chan time.Time
	var timer *time.Timer
	if w.idleTimeout > 0 {
		timer = time.NewTimer(w.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case req := <-w.reqs:
			req.reply <- w.handle(req)
			if timer != nil {
				timer.Reset(w.idleTimeout)
			}
		case <-idle:
			slog.Info("bridge worker idle, dropping grant", "directory", w.name)
			return
		case <-w.quit:
			return
		}
	}
}

func (w *worker) handle(req request) response {
	switch req.op {
	case opSelect:
		name, err := w.selectDirectory(req.path)
		return response{name: name, ok: err == nil, err: err}
	case opSave:
		return response{err: w.save(req.filename, req.data)}
	case opStatus:
		return response{name: w.name, ok: w.root != nil}
	case opDrop:
		w.release()
		return response{}
	}
	return response{err: fmt.Errorf("bridge: unknown request %d", req.op)}
}

func (w *worker) selectDirectory(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("bridge: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("bridge: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("bridge: %s is not a directory", abs)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return "", fmt.Errorf("bridge: open %s: %w", abs, err)
	}

	w.release()
	w.root = root
	w.name = filepath.Base(abs)
	slog.Info("bridge directory granted", "directory", w.name)
	return w.name, nil
}

func (w *worker) save(filename string, data []byte) error {
	if w.root == nil {
		return ErrDirectoryNotGranted
	}
	f, err := w.root.Create(filename)
	if err != nil {
		return fmt.Errorf("bridge: create %s: %w", filename, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("bridge: write %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("bridge: close %s: %w", filename, err)
	}
	slog.Debug("bridge file saved", "directory", w.name, "file", filename, "size", len(data))
	return nil
}

func (w *worker) release() {
	if w.root == nil {
		return
	}
	if err := w.root.Close(); err != nil {
		slog.Debug("bridge root close failed", "directory", w.name, "error", err)
	}
	w.root = nil
	w.name = ""
}
