package runpod

import (
	"context"
	"log/slog"
	"time"
)

// ProgressFunc streams an intermediate payload for the job being handled.
type ProgressFunc func(payload any)

// HandlerFunc runs one job to completion and returns its terminal output
// object. Handlers never surface a raw failure to the platform: every
// outcome, including errors, is encoded in the returned payload.
type HandlerFunc func(ctx context.Context, job *Job, progress ProgressFunc) any

// Worker polls the platform for jobs and runs them strictly one at a
// time. PersonaPlex is 1:1 user-to-GPU, so the declared concurrency is
// pinned to one and the loop itself never overlaps jobs.
type Worker struct {
	client       *Client
	handler      HandlerFunc
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewWorker creates a Worker polling for jobs at the given interval.
func NewWorker(client *Client, handler HandlerFunc, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{client: client, handler: handler, pollInterval: pollInterval, logger: logger}
}

// Concurrency declares the per-worker job limit to the platform.
func (w *Worker) Concurrency() int { return 1 }

// Run polls for jobs until ctx is cancelled. Each job runs synchronously;
// its terminal output is posted before the next poll.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.client.TakeJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("job take failed", "error", err)
		}
		if job != nil {
			w.runJob(ctx, job)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) runJob(ctx context.Context, job *Job) {
	w.logger.Info("job accepted", "job_id", job.ID)

	progress := func(payload any) {
		if err := w.client.SendProgress(ctx, job.ID, payload); err != nil {
			w.logger.Warn("progress update failed", "job_id", job.ID, "error", err)
		}
	}

	output := w.handler(ctx, job, progress)

	// Posting the result must survive worker cancellation: the platform
	// expects exactly one terminal output per job.
	postCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.client.SendOutput(postCtx, job.ID, output); err != nil {
		w.logger.Error("output post failed", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Info("job finished", "job_id", job.ID)
}
