package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/hiddencatch/internal/queue"
)

// Worker runs n consumers that feed queued jobs to the pipeline.
type Worker struct {
	queue    queue.Queue
	pipeline *Pipeline
	n        int
	name     string
	logger   *slog.Logger
}

func NewWorker(q queue.Queue, p *Pipeline, n int, name string, logger *slog.Logger) *Worker {
	if n <= 0 {
		n = 1
	}
	return &Worker{queue: q, pipeline: p, n: n, name: name, logger: logger}
}

// Run blocks until ctx is done or a consumer fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range w.n {
		consumer := fmt.Sprintf("%s-%d", w.name, i)
		g.Go(func() error {
			return w.queue.Consume(ctx, consumer, w.pipeline.Process)
		})
	}
	w.logger.Info("pipeline workers started", "count", w.n, "name", w.name)
	return g.Wait()
}
