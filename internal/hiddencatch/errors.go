package hiddencatch

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNotReady          = errors.New("not ready")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInconsistentState = errors.New("inconsistent state")

	// Pipeline failures; recorded on the upload slot and retryable.
	ErrNoDetections    = errors.New("no detections")
	ErrDetectionFailed = errors.New("detection failed")
	ErrEditFailed      = errors.New("edit failed")
	ErrStorageFailed   = errors.New("storage failed")
)
