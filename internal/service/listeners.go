package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tiktorch/internal/core/domain"
	"tiktorch/internal/core/ports"
)

// Listeners fans every event out to each listener in order.
type Listeners []ports.Listener

func (ls Listeners) OnProcessing(job domain.Job) {
	for _, l := range ls {
		l.OnProcessing(job)
	}
}

func (ls Listeners) OnCompleted(job domain.Job, result domain.ResultHandle) {
	for _, l := range ls {
		l.OnCompleted(job, result)
	}
}

func (ls Listeners) OnFailed(job domain.Job, err error) {
	for _, l := range ls {
		l.OnFailed(job, err)
	}
}

// JournalListener records every lifecycle event in a JobStore.
type JournalListener struct {
	store   ports.JobStore
	logger  *zap.Logger
	timeout time.Duration
}

// NewJournalListener creates a JournalListener writing to store.
func NewJournalListener(store ports.JobStore, logger *zap.Logger) *JournalListener {
	return &JournalListener{store: store, logger: logger, timeout: 5 * time.Second}
}

// Record writes a snapshot of job. Failures are logged, not returned.
func (j *JournalListener) Record(job domain.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.Put(ctx, job); err != nil {
		j.logger.Warn("Failed to journal job",
			zap.String("job_id", job.ID),
			zap.String("state", string(job.State)),
			zap.Error(err))
	}
}

func (j *JournalListener) OnProcessing(job domain.Job) { j.Record(job) }

func (j *JournalListener) OnCompleted(job domain.Job, _ domain.ResultHandle) { j.Record(job) }

func (j *JournalListener) OnFailed(job domain.Job, _ error) { j.Record(job) }

// outcome is the terminal event of a job.
type outcome struct {
	job    domain.Job
	result domain.ResultHandle
	err    error
}

// waiter turns the first terminal event into a channel receive.
type waiter struct {
	logger *zap.Logger
	done   chan outcome
}

func newWaiter(logger *zap.Logger) *waiter {
	return &waiter{logger: logger, done: make(chan outcome, 1)}
}

func (w *waiter) OnProcessing(job domain.Job) {
	w.logger.Info("Processing", zap.String("job_id", job.ID))
}

func (w *waiter) OnCompleted(job domain.Job, result domain.ResultHandle) {
	w.deliver(outcome{job: job, result: result})
}

func (w *waiter) OnFailed(job domain.Job, err error) {
	w.deliver(outcome{job: job, err: err})
}

func (w *waiter) deliver(o outcome) {
	select {
	case w.done <- o:
	default:
		// a terminal event was already delivered
	}
}
