// Package store persists job records so that finished and running jobs can
// be inspected after the fact, across bot restarts.
//
// The DynamoDB layout is a single table keyed by owner: PK is
// OWNER#{identity} and SK is JOB#{jobId}. A TTL attribute (expiresAt)
// removes records after JobTTL.
package store

import (
	"context"
	"time"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// JobTTL is the time-to-live for job records.
const JobTTL = 30 * 24 * time.Hour

// JobStore defines the persistence interface for job records.
// Each method is safe for concurrent use.
//
// GetJob returns (nil, nil) when the record does not exist.
// PutJob performs full-item replacement (upsert semantics).
type JobStore interface {
	// PutJob creates or replaces a job record.
	PutJob(ctx context.Context, rec *JobRecord) error

	// GetJob retrieves a job record. Returns nil, nil if not found.
	GetJob(ctx context.Context, identity, jobID string) (*JobRecord, error)

	// ListJobs returns up to limit records for identity, newest first.
	// A limit <= 0 returns everything.
	ListJobs(ctx context.Context, identity string, limit int) ([]*JobRecord, error)
}

// JobRecord is the stored form of a job. ID and Identity are derived from
// PK/SK on read and excluded from the item attributes on write.
type JobRecord struct {
	ID              string `json:"id" dynamodbav:"-"`
	Identity        string `json:"identity" dynamodbav:"-"`
	State           string `json:"state" dynamodbav:"state"`
	Prompt          string `json:"prompt" dynamodbav:"prompt"`
	AspectRatio     string `json:"aspectRatio" dynamodbav:"aspectRatio"`
	DurationSeconds int    `json:"durationSeconds" dynamodbav:"durationSeconds"`
	StartedAt       int64  `json:"startedAt" dynamodbav:"startedAt"`
	UpdatedAt       int64  `json:"updatedAt" dynamodbav:"updatedAt"`
	CancelRequested bool   `json:"cancelRequested,omitempty" dynamodbav:"cancelRequested,omitempty"`
	ResultURI       string `json:"resultUri,omitempty" dynamodbav:"resultUri,omitempty"`
	AssetBytes      int64  `json:"assetBytes,omitempty" dynamodbav:"assetBytes,omitempty"`
	ErrorKind       string `json:"errorKind,omitempty" dynamodbav:"errorKind,omitempty"`
	Error           string `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// RecordFromSnapshot converts an orchestrator snapshot to a JobRecord.
func RecordFromSnapshot(s pipeline.Snapshot) *JobRecord {
	rec := &JobRecord{
		ID:              s.ID,
		Identity:        s.Identity,
		State:           s.State.String(),
		Prompt:          s.Prompt,
		AspectRatio:     string(s.AspectRatio),
		DurationSeconds: s.DurationSeconds,
		StartedAt:       s.StartedAt.Unix(),
		UpdatedAt:       s.UpdatedAt.Unix(),
		CancelRequested: s.CancelRequested,
		ResultURI:       s.ResultURI,
		AssetBytes:      s.AssetBytes,
	}
	if s.Err != nil {
		rec.ErrorKind = pipeline.KindOf(s.Err).String()
		rec.Error = s.Err.Error()
	}
	return rec
}
