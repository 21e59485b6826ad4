package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// Observer fans each job snapshot out to every publisher. Failures are
// logged; they never affect the job.
type Observer struct {
	Publishers []Publisher
}

var _ pipeline.Observer = (*Observer)(nil)

func (o *Observer) Observe(ctx context.Context, s pipeline.Snapshot) {
	ev := FromSnapshot(s)
	for _, p := range o.Publishers {
		if err := p.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("job", ev.JobID).Str("stage", ev.Stage).Msg("Failed to publish job event")
		}
	}
}

// Close closes every publisher.
func (o *Observer) Close() error {
	var errs []error
	for _, p := range o.Publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
