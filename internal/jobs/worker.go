package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/logging"
	"go.uber.org/zap"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor on a fixed interval
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the processor once immediately and then on every tick until
// ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	logger := logging.FromContext(ctx).With(zap.String("worker", w.name))
	logger.Info("worker started", zap.Duration("poll_interval", w.pollInterval))

	w.run(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			logger.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			w.run(ctx, logger)
		}
	}
}

func (w *Worker) run(ctx context.Context, logger *zap.Logger) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		logger.Error("error processing jobs", zap.Error(err))
	}
}

// Stop gracefully stops the worker and waits for the current run to finish
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
}
