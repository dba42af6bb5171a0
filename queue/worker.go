package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Processor handles one job. A returned error counts as a failed attempt.
type Processor func(ctx context.Context, job *Job) error

// Worker pops jobs and dispatches them by name
type Worker struct {
	client      *Client
	processors  map[string]Processor
	logger      *slog.Logger
	pollTimeout time.Duration
	concurrency int
}

func NewWorker(client *Client, processors map[string]Processor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:      client,
		processors:  processors,
		logger:      logger,
		pollTimeout: 2 * time.Second,
		concurrency: 1,
	}
}

// WithConcurrency sets the number of jobs processed in parallel
func (w *Worker) WithConcurrency(n int) *Worker {
	if n > 0 {
		w.concurrency = n
	}
	return w
}

// WithPollTimeout sets how long a pop blocks before checking for shutdown
func (w *Worker) WithPollTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.pollTimeout = d
	}
	return w
}

// Run processes jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.client.Pop(ctx, w.pollTimeout)
		if errors.Is(err, ErrNoJob) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("pop job failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.ProcessJob(ctx, job)
	}
}

// ProcessJob runs one popped job and acks or retries it
func (w *Worker) ProcessJob(ctx context.Context, job *Job) {
	processor, ok := w.processors[job.Name]
	var err error
	if !ok {
		err = fmt.Errorf("no processor for job %q", job.Name)
		job.Attempt = job.MaxAttempts
	} else {
		err = safeProcess(ctx, processor, job)
	}

	if err == nil {
		if err := w.client.Ack(ctx, job); err != nil {
			w.logger.Error("ack job failed", "job_id", job.ID, "error", err)
		}
		w.logger.Info("job done", "job_id", job.ID, "name", job.Name, "attempt", job.Attempt+1)
		return
	}

	dead, rerr := w.client.Retry(ctx, job, err)
	if rerr != nil {
		w.logger.Error("retry job failed", "job_id", job.ID, "error", rerr)
		return
	}
	if dead {
		w.logger.Error("job dead-lettered", "job_id", job.ID, "name", job.Name, "error", err)
	} else {
		w.logger.Warn("job failed, requeued", "job_id", job.ID, "name", job.Name, "attempt", job.Attempt+1, "error", err)
	}
}

func safeProcess(ctx context.Context, p Processor, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p(ctx, job)
}
