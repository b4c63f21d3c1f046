package pointvalue

import "errors"

// Domain-specific errors for point value storage.
var (
	// ErrTransientConflict indicates a lock, deadlock or connection failure
	// that persisted after every retry.
	ErrTransientConflict = errors.New("pointvalue: transient storage conflict")

	// ErrPermanentStorage indicates a failure that retrying cannot fix,
	// such as a constraint violation or a blob write error.
	ErrPermanentStorage = errors.New("pointvalue: permanent storage error")

	// ErrQueryCancelled indicates a streaming read was stopped by its
	// callback or its context. It is not a data error.
	ErrQueryCancelled = errors.New("pointvalue: query cancelled")

	// ErrUnsupportedValueKind indicates a stored discriminant this version
	// does not understand. It points at data corruption or version skew.
	ErrUnsupportedValueKind = errors.New("pointvalue: unsupported value kind")

	// ErrInvalidPoint indicates a point id that is not positive.
	ErrInvalidPoint = errors.New("pointvalue: invalid point id")

	// ErrInvalidValue indicates a point value without a value.
	ErrInvalidValue = errors.New("pointvalue: value is required")

	// ErrImageNotFound indicates no image value under the requested id.
	ErrImageNotFound = errors.New("pointvalue: image not found")

	// ErrStoreClosed indicates a write after Close.
	ErrStoreClosed = errors.New("pointvalue: store closed")
)
