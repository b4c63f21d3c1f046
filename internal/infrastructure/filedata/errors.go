package filedata

import "errors"

// Domain-specific errors for blob storage.
var (
	// ErrBlobAlreadyExists indicates a save for an id that is already stored.
	// Blobs are write-once.
	ErrBlobAlreadyExists = errors.New("filedata: blob already exists")

	// ErrBlobNotFound indicates no blob is stored for the id.
	ErrBlobNotFound = errors.New("filedata: blob not found")
)
