package background

import "errors"

// Domain-specific errors for the background executor.
var (
	// ErrRejected indicates every task slot is busy.
	ErrRejected = errors.New("background: task rejected, executor saturated")

	// ErrExecutorClosed indicates Submit was called after Close.
	ErrExecutorClosed = errors.New("background: executor closed")
)
