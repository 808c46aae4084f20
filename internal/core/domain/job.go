package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VideoExtension is appended to every generated job id.
const VideoExtension = ".mp4"

// State is the lifecycle position of a Job.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job represents one video submitted for remote processing.
type Job struct {
	ID             string       `json:"job_id"`
	SourceLocation string       `json:"source_location"`
	State          State        `json:"state"`
	ResultLocation ResultHandle `json:"result_location,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	// FetchError is the last failed result download of a completed job.
	FetchError     string       `json:"fetch_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewJob creates an idle job for the video at source.
func NewJob(source string) Job {
	now := time.Now().UTC()
	return Job{
		ID:             strings.ToUpper(uuid.New().String()) + VideoExtension,
		SourceLocation: source,
		State:          StateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Filename is the name the video is uploaded under. The id already
// carries the extension.
func (j Job) Filename() string {
	if strings.HasSuffix(j.ID, VideoExtension) {
		return j.ID
	}
	return j.ID + VideoExtension
}

// ResultHandle is the remote location of a processed video.
type ResultHandle string

func (h ResultHandle) String() string { return string(h) }

// JobResult holds the outcome of a job run end to end.
type JobResult struct {
	Job          Job
	JobPath      string
	VideoPath    string
	Success      bool
	ErrorMessage string
	CompletedAt  time.Time
}
