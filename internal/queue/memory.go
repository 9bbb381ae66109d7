package queue

import (
	"context"
	"log/slog"
)

// Memory is an in-process queue for tests and single-binary setups.
type Memory struct {
	jobs   chan Job
	logger *slog.Logger
}

func NewMemory(size int, logger *slog.Logger) *Memory {
	return &Memory{jobs: make(chan Job, size), logger: logger}
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, consumer string, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			if err := h(ctx, job); err != nil {
				m.logger.Warn("job failed", "consumer", consumer, "slot_id", job.SlotID, "version", job.Version, "error", err)
			}
		}
	}
}
