// Package background provides a bounded executor for short-lived
// background tasks.
//
// The executor runs at most MaxTasks tasks at once. Submit never blocks:
// when every slot is busy the task is rejected with ErrRejected and the
// caller decides what to do (the point value batcher simply leaves the
// work queued for an existing worker).
//
// Usage:
//
//	exec := background.New(cfg.Background.MaxTasks)
//	exec.SetLogger(logger.With("component", "background"))
//	defer exec.Close(shutdownCtx)
//
//	if err := exec.Submit("batch-writer", func(ctx context.Context) {
//	    // ...
//	}); errors.Is(err, background.ErrRejected) {
//	    // saturated
//	}
package background
