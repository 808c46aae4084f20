package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"tiktorch/internal/adapters/videoapi"
	"tiktorch/internal/core/domain"
	"tiktorch/internal/core/ports"
)

// Processor runs a job end to end: upload, wait for the service, then
// download and store the processed video.
type Processor struct {
	api       *videoapi.Client
	source    ports.SourceProvider
	scheduler ports.Scheduler
	storage   ports.Storage
	journal   *JournalListener
	logger    *zap.Logger
	cfg       ClientConfig
}

// NewProcessor creates a new Processor. journal may be nil.
func NewProcessor(
	api *videoapi.Client,
	source ports.SourceProvider,
	scheduler ports.Scheduler,
	storage ports.Storage,
	journal ports.JobStore,
	logger *zap.Logger,
	cfg ClientConfig,
) *Processor {
	p := &Processor{
		api:       api,
		source:    source,
		scheduler: scheduler,
		storage:   storage,
		logger:    logger,
		cfg:       cfg,
	}
	if journal != nil {
		p.journal = NewJournalListener(journal, logger)
	}
	return p
}

// RunJob processes the recording at sourcePath. On cancellation of ctx
// the job is cancelled and ctx.Err() is returned.
func (p *Processor) RunJob(ctx context.Context, sourcePath string) (*domain.JobResult, error) {
	job := domain.NewJob(sourcePath)
	result := &domain.JobResult{Job: job, JobPath: p.storage.GetJobPath(job.ID)}
	log := p.logger.With(zap.String("job_id", job.ID))
	log.Info("Starting job", zap.String("source", sourcePath))

	if err := p.storage.InitJob(ctx, job.ID); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to init job: %v", err)
		log.Error("Job failed", zap.String("reason", result.ErrorMessage))
		return result, err
	}
	p.saveSnapshot(ctx, log, job)

	w := newWaiter(log)
	listeners := Listeners{}
	if p.journal != nil {
		p.journal.Record(job)
		listeners = append(listeners, p.journal)
	}
	listeners = append(listeners, w)

	client := NewJobClient(p.api, p.source, p.scheduler, listeners, p.logger, p.cfg)
	defer client.Cancel()

	if err := client.Submit(ctx, job); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			p.recordCancelled(client)
			return p.finishFailed(ctx, log, result, client, "job cancelled", err)
		}
		return p.finishFailed(ctx, log, result, client, fmt.Sprintf("failed to submit video: %v", err), err)
	}

	var o outcome
	select {
	case o = <-w.done:
	case <-ctx.Done():
		client.Cancel()
		p.recordCancelled(client)
		return p.finishFailed(ctx, log, result, client, "job cancelled", ctx.Err())
	}

	if o.err != nil {
		return p.finishFailed(ctx, log, result, client, fmt.Sprintf("failed to process video: %v", o.err), o.err)
	}
	result.Job = o.job

	body, err := client.FetchResult(ctx)
	if err != nil {
		return p.finishFailed(ctx, log, result, client, fmt.Sprintf("failed to download result: %v", err), err)
	}
	defer body.Close()

	filename := job.Filename()
	if err := p.storage.SaveVideo(ctx, job.ID, body, filename); err != nil {
		return p.finishFailed(ctx, log, result, client, fmt.Sprintf("failed to save result: %v", err), err)
	}
	result.VideoPath = filepath.Join(result.JobPath, filename)
	log.Info("Saved result", zap.String("path", result.VideoPath))

	p.saveSnapshot(ctx, log, result.Job)
	result.Success = true
	result.CompletedAt = time.Now().UTC()
	log.Info("Job completed successfully", zap.String("artifacts", result.JobPath))

	return result, nil
}

// recordCancelled journals the job after a cancellation, which emits no
// event of its own.
func (p *Processor) recordCancelled(client *JobClient) {
	if p.journal == nil {
		return
	}
	if snap, ok := client.Job(); ok {
		p.journal.Record(snap)
	}
}

func (p *Processor) finishFailed(
	ctx context.Context,
	log *zap.Logger,
	result *domain.JobResult,
	client *JobClient,
	msg string,
	err error,
) (*domain.JobResult, error) {
	if snap, ok := client.Job(); ok {
		result.Job = snap
	}
	result.ErrorMessage = msg
	result.CompletedAt = time.Now().UTC()
	log.Error("Job failed", zap.String("reason", msg))
	p.saveSnapshot(context.WithoutCancel(ctx), log, result.Job)
	return result, err
}

func (p *Processor) saveSnapshot(ctx context.Context, log *zap.Logger, job domain.Job) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		log.Warn("Failed to encode job snapshot", zap.Error(err))
		return
	}
	if err := p.storage.SaveInput(ctx, job.ID, data); err != nil {
		log.Warn("Failed to save job snapshot", zap.Error(err))
	}
}
