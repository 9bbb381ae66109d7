// Package queue carries pipeline jobs from the HTTP layer to the workers.
package queue

import "context"

// Job asks a worker to analyze one upload slot. Version is the slot's run
// version at enqueue time; a worker drops the job once the slot has moved on.
type Job struct {
	SlotID  int64 `json:"slot_id"`
	Version int64 `json:"version"`
}

// Handler processes one job. A returned error is logged by the consumer; the
// job is not redelivered.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume feeds jobs to h until ctx is done.
	Consume(ctx context.Context, consumer string, h Handler) error
}
