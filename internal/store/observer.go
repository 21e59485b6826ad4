package store

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// Observer writes a job record on every state transition.
type Observer struct {
	Store JobStore
}

var _ pipeline.Observer = Observer{}

func (o Observer) Observe(ctx context.Context, s pipeline.Snapshot) {
	if err := o.Store.PutJob(ctx, RecordFromSnapshot(s)); err != nil {
		log.Warn().Err(err).Str("job", s.ID).Str("state", s.State.String()).Msg("Failed to persist job record")
	}
}
