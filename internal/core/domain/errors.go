package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation's state precondition fails.
	ErrInvalidState = errors.New("job is not in a valid state for this operation")
	// ErrNotCompleted is returned by a result fetch before the job completed.
	ErrNotCompleted = fmt.Errorf("%w: job has not completed", ErrInvalidState)
	// ErrJobActive is returned when a client already drives a job.
	ErrJobActive = errors.New("client already has an active job")
	// ErrCancelled marks a response that arrived after the job was cancelled.
	ErrCancelled = errors.New("job was cancelled")
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindClient    ErrorKind = "client_error"
	KindServer    ErrorKind = "server_error"
	KindTransport ErrorKind = "transport_error"
	KindParse     ErrorKind = "parse_error"
	KindTimeout   ErrorKind = "timeout"
)

// ClassifyStatus maps an HTTP status code onto an error kind. The second
// return value is false for 2xx codes.
func ClassifyStatus(code int) (ErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code >= 400 && code < 500:
		return KindClient, true
	case code >= 500 && code < 600:
		return KindServer, true
	default:
		return KindTransport, true
	}
}

// Operation names used in JobError.
const (
	OpSubmit = "submit"
	OpPoll   = "poll"
	OpFetch  = "fetch"
)

// JobError describes a failed submit, poll or fetch.
type JobError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first JobError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind, true
	}
	return "", false
}
