// Package events publishes job lifecycle events to NATS and EventBridge so
// other services can react to generated videos.
package events

import (
	"context"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// Source identifies this service on published events.
const Source = "gemini-video-bot"

// DetailType is the EventBridge detail-type of every job event.
const DetailType = "VideoJobLifecycle"

// FailureType tells consumers whether a failed job is worth retrying.
type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
	FailureTypeCancelled  FailureType = "cancelled"
)

// JobEvent is the payload published on every job state change.
type JobEvent struct {
	JobID           string      `json:"job_id"`
	Identity        string      `json:"identity"`
	Stage           string      `json:"stage"`
	Terminal        bool        `json:"terminal"`
	Prompt          string      `json:"prompt"`
	AspectRatio     string      `json:"aspect_ratio"`
	DurationSeconds int         `json:"duration_seconds"`
	StartedAt       int64       `json:"started_at"`
	ResultURI       string      `json:"result_uri,omitempty"`
	AssetBytes      int64       `json:"asset_bytes,omitempty"`
	Error           string      `json:"error,omitempty"`
	ErrorKind       string      `json:"error_kind,omitempty"`
	FailureType     FailureType `json:"failure_type,omitempty"`
	HappenedAt      int64       `json:"happened_at"`
}

// Publisher sends job events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev JobEvent) error
	Close() error
}

// FromSnapshot builds the event for a snapshot.
func FromSnapshot(s pipeline.Snapshot) JobEvent {
	ev := JobEvent{
		JobID:           s.ID,
		Identity:        s.Identity,
		Stage:           s.State.String(),
		Terminal:        s.State.Terminal(),
		Prompt:          s.Prompt,
		AspectRatio:     string(s.AspectRatio),
		DurationSeconds: s.DurationSeconds,
		StartedAt:       s.StartedAt.Unix(),
		ResultURI:       s.ResultURI,
		AssetBytes:      s.AssetBytes,
		HappenedAt:      s.UpdatedAt.Unix(),
	}
	if s.Err != nil {
		kind := pipeline.KindOf(s.Err)
		ev.Error = s.Err.Error()
		ev.ErrorKind = kind.String()
		ev.FailureType = failureType(kind)
	}
	return ev
}

func failureType(k pipeline.Kind) FailureType {
	switch k {
	case pipeline.KindInvalidInput:
		return FailureTypeValidation
	case pipeline.KindAuth, pipeline.KindMalformedResponse:
		return FailureTypePermanent
	case pipeline.KindCancelled:
		return FailureTypeCancelled
	default:
		return FailureTypeRetryable
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, JobEvent) error { return nil }
func (Nop) Close() error                            { return nil }
