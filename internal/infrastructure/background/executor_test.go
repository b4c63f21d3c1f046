package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_DefaultLimit(t *testing.T) {
	e := New(0)
	defer e.Close(context.Background()) //nolint:errcheck // Test cleanup

	if e.MaxTasks() != defaultMaxTasks {
		t.Errorf("MaxTasks() = %d, want %d", e.MaxTasks(), defaultMaxTasks)
	}
}

func TestSubmit_RunsTask(t *testing.T) {
	e := New(2)

	var ran atomic.Bool
	if err := e.Submit("test", func(context.Context) { ran.Store(true) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !ran.Load() {
		t.Error("task did not run")
	}
}

func TestSubmit_RejectsWhenSaturated(t *testing.T) {
	e := New(1)

	release := make(chan struct{})
	started := make(chan struct{})
	if err := e.Submit("blocker", func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	err := e.Submit("second", func(context.Context) {})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("Submit() error = %v, want ErrRejected", err)
	}
	if e.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", e.Rejected())
	}

	close(release)
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestSubmit_AfterClose(t *testing.T) {
	e := New(1)
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := e.Submit("late", func(context.Context) {})
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Submit() error = %v, want ErrExecutorClosed", err)
	}

	// Second close is a no-op.
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSubmit_RecoversPanic(t *testing.T) {
	e := New(1)

	if err := e.Submit("panics", func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestClose_TimeoutCancelsTasks(t *testing.T) {
	e := New(1)

	cancelled := make(chan struct{})
	if err := e.Submit("slow", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := e.Close(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("task context was not cancelled")
	}
}

func TestSubmit_Concurrent(t *testing.T) {
	e := New(4)

	var (
		wg        sync.WaitGroup
		completed atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Submit("worker", func(context.Context) {
				time.Sleep(time.Millisecond)
				completed.Add(1)
			})
			if errors.Is(err, ErrRejected) {
				rejected.Add(1)
			} else if err != nil {
				t.Errorf("Submit() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if completed.Load()+rejected.Load() != 50 {
		t.Errorf("completed %d + rejected %d != 50", completed.Load(), rejected.Load())
	}
	if e.Running() != 0 {
		t.Errorf("Running() = %d after Close, want 0", e.Running())
	}
}
