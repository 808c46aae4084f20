package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"tiktorch/internal/adapters/videoapi"
	"tiktorch/internal/core/domain"
	"tiktorch/internal/core/ports"
)

// DefaultPollInterval is how often the status endpoint is polled.
const DefaultPollInterval = time.Second

// ClientConfig tunes the polling loop. Zero limits mean unbounded.
type ClientConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	MaxPollDuration time.Duration
	// MaxPollBackoff caps how many ticks are skipped after consecutive
	// transport errors. The skip count doubles per error.
	MaxPollBackoff int
}

// JobClient drives a single job through
// Idle -> Uploading -> Processing -> Completed|Failed.
//
// Every asynchronous step captures the client's epoch before it starts;
// a response observed under a different epoch is dropped without
// touching the job.
type JobClient struct {
	api       *videoapi.Client
	source    ports.SourceProvider
	scheduler ports.Scheduler
	listener  ports.Listener
	logger    *zap.Logger
	cfg       ClientConfig
	now       func() time.Time

	mu          sync.Mutex
	job         *domain.Job
	epoch       uint64
	poll        ports.Handle
	inFlight    bool
	attempts    int
	pollStarted time.Time
	errStreak   int
	skipTicks   int
}

// NewJobClient creates a JobClient. A nil listener discards events.
func NewJobClient(
	api *videoapi.Client,
	source ports.SourceProvider,
	scheduler ports.Scheduler,
	listener ports.Listener,
	logger *zap.Logger,
	cfg ClientConfig,
) *JobClient {
	if listener == nil {
		listener = Listeners{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &JobClient{
		api:       api,
		source:    source,
		scheduler: scheduler,
		listener:  listener,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Job returns a snapshot of the job the client owns.
func (c *JobClient) Job() (domain.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return domain.Job{}, false
	}
	return *c.job, true
}

// Submit uploads the job's source video and, on success, starts polling.
// It blocks for the duration of the upload only.
func (c *JobClient) Submit(ctx context.Context, job domain.Job) error {
	if job.State != domain.StateIdle {
		return fmt.Errorf("submit %s: %w (state %s)", job.ID, domain.ErrInvalidState, job.State)
	}

	c.mu.Lock()
	if c.job != nil && (c.job.State == domain.StateUploading || c.job.State == domain.StateProcessing) {
		active := c.job.ID
		c.mu.Unlock()
		return fmt.Errorf("submit %s: %w (%s)", job.ID, domain.ErrJobActive, active)
	}
	c.stopPollLocked()
	c.epoch++
	epoch := c.epoch
	c.job = &job
	c.transitionLocked(domain.StateUploading)
	c.mu.Unlock()

	log := c.logger.With(zap.String("job_id", job.ID))
	log.Info("Uploading video", zap.String("source", job.SourceLocation))

	video, err := c.source.Open(ctx, job.SourceLocation)
	if err != nil {
		c.mu.Lock()
		if epoch == c.epoch {
			c.transitionLocked(domain.StateIdle)
		}
		c.mu.Unlock()
		log.Error("Source video is not readable", zap.Error(err))
		return fmt.Errorf("submit %s: %w: %w", job.ID, domain.ErrInvalidState, err)
	}
	defer video.Close()

	code, err := c.api.Upload(ctx, job.Filename(), video)
	c.logResponseClass(log, "upload", code)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		log.Info("Upload finished after cancellation, ignoring response")
		return fmt.Errorf("submit %s: %w", job.ID, domain.ErrCancelled)
	}
	if err != nil && ctx.Err() != nil {
		c.epoch++
		c.transitionLocked(domain.StateIdle)
		c.mu.Unlock()
		log.Info("Upload aborted, job returned to idle", zap.Error(ctx.Err()))
		return fmt.Errorf("submit %s: %w: %w", job.ID, domain.ErrCancelled, ctx.Err())
	}
	if err != nil {
		c.failLocked(err)
		snap := *c.job
		c.mu.Unlock()
		log.Error("Upload failed", zap.Error(err))
		c.listener.OnFailed(snap, err)
		return err
	}
	c.transitionLocked(domain.StateProcessing)
	snap := *c.job
	c.mu.Unlock()

	log.Info("Video uploaded, processing")
	c.listener.OnProcessing(snap)

	c.mu.Lock()
	if epoch == c.epoch && c.job.State == domain.StateProcessing {
		c.startPollLocked(context.WithoutCancel(ctx), epoch)
	}
	c.mu.Unlock()
	return nil
}

func (c *JobClient) startPollLocked(ctx context.Context, epoch uint64) {
	c.inFlight = false
	c.attempts = 0
	c.errStreak = 0
	c.skipTicks = 0
	c.pollStarted = c.now()
	c.poll = c.scheduler.ScheduleRepeating(c.cfg.PollInterval, func() {
		c.pollOnce(ctx, epoch)
	})
}

func (c *JobClient) stopPollLocked() {
	if c.poll != nil {
		c.poll.Stop()
		c.poll = nil
	}
}

// pollOnce issues one status request unless one is already outstanding.
func (c *JobClient) pollOnce(ctx context.Context, epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.job == nil || c.job.State != domain.StateProcessing || c.inFlight {
		c.mu.Unlock()
		return
	}
	if c.skipTicks > 0 {
		c.skipTicks--
		c.mu.Unlock()
		return
	}
	if err := c.pollBudgetLocked(); err != nil {
		c.stopPollLocked()
		c.failLocked(err)
		snap := *c.job
		c.mu.Unlock()
		c.logger.Error("Giving up on job", zap.String("job_id", snap.ID), zap.Error(err))
		c.listener.OnFailed(snap, err)
		return
	}
	c.inFlight = true
	c.attempts++
	jobID := c.job.ID
	c.mu.Unlock()

	log := c.logger.With(zap.String("job_id", jobID))
	status, code, err := c.api.Status(ctx, jobID)
	c.logResponseClass(log, "status", code)

	c.mu.Lock()
	if epoch != c.epoch || c.job.State != domain.StateProcessing {
		c.mu.Unlock()
		return
	}
	c.inFlight = false

	if err != nil {
		if kind, _ := domain.KindOf(err); kind == domain.KindTransport {
			c.errStreak++
			c.skipTicks = c.backoffTicks()
		} else {
			c.errStreak = 0
		}
		skip := c.skipTicks
		c.mu.Unlock()
		log.Warn("Status poll failed", zap.Error(err), zap.Int("skip_ticks", skip))
		return
	}
	c.errStreak = 0

	if status != videoapi.StatusFinished {
		c.mu.Unlock()
		log.Debug("Job still processing", zap.String("status", status))
		return
	}

	c.stopPollLocked()
	c.job.ResultLocation = c.api.ResultURL(jobID)
	c.transitionLocked(domain.StateCompleted)
	snap := *c.job
	c.mu.Unlock()

	log.Info("Job completed", zap.String("result", snap.ResultLocation.String()))
	c.listener.OnCompleted(snap, snap.ResultLocation)
}

func (c *JobClient) pollBudgetLocked() error {
	if c.cfg.MaxPollAttempts > 0 && c.attempts >= c.cfg.MaxPollAttempts {
		return &domain.JobError{
			Op:   domain.OpPoll,
			Kind: domain.KindTimeout,
			Err:  fmt.Errorf("no result after %d status polls", c.attempts),
		}
	}
	if c.cfg.MaxPollDuration > 0 {
		if elapsed := c.now().Sub(c.pollStarted); elapsed >= c.cfg.MaxPollDuration {
			return &domain.JobError{
				Op:   domain.OpPoll,
				Kind: domain.KindTimeout,
				Err:  fmt.Errorf("no result after %s", elapsed.Round(time.Millisecond)),
			}
		}
	}
	return nil
}

func (c *JobClient) backoffTicks() int {
	if c.cfg.MaxPollBackoff <= 0 || c.errStreak <= 0 {
		return 0
	}
	skip := 1
	for i := 1; i < c.errStreak && skip < c.cfg.MaxPollBackoff; i++ {
		skip *= 2
	}
	return min(skip, c.cfg.MaxPollBackoff)
}

// FetchResult downloads the processed video. The caller must close the
// returned reader. A failed fetch is reported to the listener and kept in
// the job's FetchError, but leaves the job completed so the fetch can be
// repeated.
func (c *JobClient) FetchResult(ctx context.Context) (io.ReadCloser, error) {
	c.mu.Lock()
	if c.job == nil || c.job.State != domain.StateCompleted {
		state := domain.StateIdle
		if c.job != nil {
			state = c.job.State
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("fetch result: %w (state %s)", domain.ErrNotCompleted, state)
	}
	snap := *c.job
	c.mu.Unlock()

	log := c.logger.With(zap.String("job_id", snap.ID))
	log.Info("Downloading result", zap.String("result", snap.ResultLocation.String()))

	body, err := c.api.Download(ctx, snap.ResultLocation)
	if err != nil {
		c.mu.Lock()
		if c.job != nil && c.job.ID == snap.ID {
			c.job.FetchError = err.Error()
			c.job.UpdatedAt = c.now().UTC()
			snap = *c.job
		}
		c.mu.Unlock()
		log.Error("Result download failed", zap.Error(err))
		c.listener.OnFailed(snap, err)
		return nil, err
	}

	c.mu.Lock()
	if c.job != nil && c.job.ID == snap.ID {
		c.job.FetchError = ""
	}
	c.mu.Unlock()
	return body, nil
}

// Cancel stops polling and returns a non-terminal job to Idle. Responses
// to requests already in flight are ignored. Safe to call repeatedly and
// in any state.
func (c *JobClient) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.stopPollLocked()
	c.inFlight = false
	c.skipTicks = 0

	if c.job == nil || c.job.State.Terminal() || c.job.State == domain.StateIdle {
		return
	}
	c.logger.Info("Cancelling job",
		zap.String("job_id", c.job.ID),
		zap.String("state", string(c.job.State)))
	c.transitionLocked(domain.StateIdle)
}

func (c *JobClient) transitionLocked(state domain.State) {
	c.job.State = state
	c.job.UpdatedAt = c.now().UTC()
}

func (c *JobClient) failLocked(err error) {
	c.job.LastError = err.Error()
	c.transitionLocked(domain.StateFailed)
}

func (c *JobClient) logResponseClass(log *zap.Logger, request string, code int) {
	if code == 0 {
		return
	}
	kind, failed := domain.ClassifyStatus(code)
	switch {
	case !failed:
		log.Debug("Success", zap.String("request", request), zap.Int("code", code))
	case kind == domain.KindClient:
		log.Debug("Request error", zap.String("request", request), zap.Int("code", code))
	case kind == domain.KindServer:
		log.Debug("Server error", zap.String("request", request), zap.Int("code", code))
	default:
		log.Debug("Other code", zap.String("request", request), zap.Int("code", code))
	}
}
