package ports

import (
	"context"
	"io"
	"net/http"
	"time"

	"tiktorch/internal/core/domain"
)

// Transport sends a single HTTP request. Implementations must not retry.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Handle cancels a repeating schedule. Stop must be idempotent.
type Handle interface {
	Stop()
}

// Scheduler runs fn every interval until the returned handle is stopped.
type Scheduler interface {
	ScheduleRepeating(interval time.Duration, fn func()) Handle
}

// SourceProvider opens the local recording a job uploads.
type SourceProvider interface {
	// Open returns a stream of the video at location. The caller must close it.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Listener receives job lifecycle events. Calls for one job never overlap.
type Listener interface {
	OnProcessing(job domain.Job)
	OnCompleted(job domain.Job, result domain.ResultHandle)
	OnFailed(job domain.Job, err error)
}

// Storage defines the contract for persisting job artifacts.
type Storage interface {
	// InitJob creates the job directory structure.
	InitJob(ctx context.Context, jobID string) error

	// SaveInput saves a snapshot of the job.
	SaveInput(ctx context.Context, jobID string, data []byte) error

	// SaveVideo saves the processed video from the provided reader.
	SaveVideo(ctx context.Context, jobID string, reader io.Reader, filename string) error

	// GetJobPath returns the filesystem path for a given job ID.
	GetJobPath(jobID string) string
}

// JobStore keeps a journal of jobs across runs.
type JobStore interface {
	Put(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, jobID string) (domain.Job, error)
	List(ctx context.Context) ([]domain.Job, error)
}
