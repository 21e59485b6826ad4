package metrics

import (
	"context"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// JobObserver emits one EMF document per finished job.
type JobObserver struct {
	Namespace string
}

// Compile-time interface check.
var _ pipeline.Observer = JobObserver{}

func (o JobObserver) Observe(_ context.Context, s pipeline.Snapshot) {
	if !s.State.Terminal() {
		return
	}
	ns := o.Namespace
	if ns == "" {
		ns = Namespace
	}

	rec := New(ns).
		Dimension("Outcome", s.State.String()).
		Metric("JobDurationMs", float64(s.UpdatedAt.Sub(s.StartedAt).Milliseconds()), UnitMilliseconds).
		Count("JobCompleted").
		Property("jobId", s.ID).
		Property("aspectRatio", string(s.AspectRatio)).
		Property("durationSeconds", s.DurationSeconds)

	if s.Err != nil {
		rec.Property("errorKind", pipeline.KindOf(s.Err).String())
	}
	if s.AssetBytes > 0 {
		rec.Metric("AssetBytes", float64(s.AssetBytes), UnitBytes)
	}
	rec.Flush()
}
