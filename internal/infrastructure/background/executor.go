package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// defaultMaxTasks is used when New is given a non-positive limit.
const defaultMaxTasks = 16

// Task is a unit of background work. The context is cancelled only when
// Close gives up waiting.
type Task = func(ctx context.Context)

// Logger defines the logging interface for the executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor runs background tasks with bounded concurrency.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Executor struct {
	maxTasks int
	logger   Logger

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	running  atomic.Int64
	rejected atomic.Uint64
}

// New creates an executor that runs at most maxTasks tasks concurrently.
func New(maxTasks int) *Executor {
	if maxTasks <= 0 {
		maxTasks = defaultMaxTasks
	}

	group := new(errgroup.Group)
	group.SetLimit(maxTasks)

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		maxTasks: maxTasks,
		logger:   noopLogger{},
		group:    group,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// Submit starts task in the background if a slot is free.
//
// Parameters:
//   - name: Task name used in log entries
//   - task: The work to run
//
// Returns:
//   - error: ErrRejected if saturated, ErrExecutorClosed after Close
func (e *Executor) Submit(name string, task Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExecutorClosed
	}

	started := e.group.TryGo(func() error {
		e.running.Add(1)
		defer e.running.Add(-1)
		e.run(name, task)
		return nil
	})
	if !started {
		e.rejected.Add(1)
		e.logger.Debug("background task rejected", "task", name, "max_tasks", e.maxTasks)
		return ErrRejected
	}
	return nil
}

// run executes task, recovering from panics so one bad task cannot
// take the process down.
func (e *Executor) run(name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in background task",
				"task", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task(e.ctx)
}

// Running returns the number of tasks currently executing.
func (e *Executor) Running() int {
	return int(e.running.Load())
}

// Rejected returns the number of tasks rejected since creation.
func (e *Executor) Rejected() uint64 {
	return e.rejected.Load()
}

// MaxTasks returns the concurrency limit.
func (e *Executor) MaxTasks() int {
	return e.maxTasks
}

// Close stops accepting tasks and waits for running ones to finish.
// If ctx expires first, running tasks see their context cancelled and
// Close returns the context error.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.group.Wait() //nolint:errcheck // Tasks never return errors
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}
