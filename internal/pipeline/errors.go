package pipeline

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure so callers can render one stable message
// per category regardless of which stage or upstream produced it.
type Kind int

const (
	// KindTransient covers network failures and any upstream error that does
	// not map to a more specific kind.
	KindTransient Kind = iota
	// KindInvalidInput indicates the request failed validation before any stage ran.
	KindInvalidInput
	// KindAuth indicates the credential was rejected by the generation service.
	KindAuth
	// KindQuota indicates the generation service refused the call for quota reasons.
	KindQuota
	// KindMalformedResponse indicates the operation finished without a usable result.
	KindMalformedResponse
	// KindDownloadFailed indicates the generated asset could not be fetched.
	KindDownloadFailed
	// KindUploadFailed indicates the asset could not be delivered.
	KindUploadFailed
	// KindCancelled indicates the job stopped because cancellation was requested.
	KindCancelled
	// KindAlreadyRunning indicates a job was rejected because the slot is occupied.
	KindAlreadyRunning
	// KindNoActiveJob indicates a cancel request found nothing to cancel.
	KindNoActiveJob
)

var kindNames = map[Kind]string{
	KindTransient:         "transient",
	KindInvalidInput:      "invalid_input",
	KindAuth:              "auth",
	KindQuota:             "quota",
	KindMalformedResponse: "malformed_response",
	KindDownloadFailed:    "download_failed",
	KindUploadFailed:      "upload_failed",
	KindCancelled:         "cancelled",
	KindAlreadyRunning:    "already_running",
	KindNoActiveJob:       "no_active_job",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type produced by the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrCancelled) matches every cancellation regardless of stage.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Detail returns the most specific human-readable text carried by the error:
// the wrapped upstream error when present, otherwise the message.
func (e *Error) Detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Sentinels for errors.Is comparisons.
var (
	ErrAlreadyRunning = &Error{Kind: KindAlreadyRunning, Message: "a generation job is already running"}
	ErrNoActiveJob    = &Error{Kind: KindNoActiveJob, Message: "no active generation job"}
	ErrCancelled      = &Error{Kind: KindCancelled, Message: "generation cancelled"}
)

// NewError builds a pipeline error. Adapters outside this package use it to
// hand back already-classified failures.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err. Errors that are not pipeline errors are
// reported as KindTransient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// classify keeps an existing pipeline error as-is and wraps anything else
// under the given fallback kind.
func classify(err error, fallback Kind, message string) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return NewError(fallback, message, err)
}
