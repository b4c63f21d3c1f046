package ingest

import "errors"

// Domain-specific errors for sample ingestion.
var (
	// ErrInvalidTopic indicates a message on a topic that is not a point
	// sample topic.
	ErrInvalidTopic = errors.New("ingest: invalid sample topic")

	// ErrInvalidMessage indicates a payload that cannot be decoded into a
	// point value.
	ErrInvalidMessage = errors.New("ingest: invalid sample message")

	// ErrTypeMismatch indicates a sample whose type differs from the type
	// the point was registered with.
	ErrTypeMismatch = errors.New("ingest: sample type does not match point")

	// ErrNotStarted indicates Stop was called before Start.
	ErrNotStarted = errors.New("ingest: not started")
)
