package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Notifier keeps one status message per job up to date. It edits the
// existing message, posts a new one when the edit fails, and drops the
// update when both fail. It never returns an error and never panics.
type Notifier struct {
	mu     sync.Mutex
	ch     StatusChannel
	jobID  string
	ref    StatusRef
	posted bool
	last   string
}

// NewNotifier creates a notifier that writes to ch. jobID is used for logging only.
func NewNotifier(ch StatusChannel, jobID string) *Notifier {
	return &Notifier{ch: ch, jobID: jobID}
}

// Update replaces the status text. Identical consecutive texts are skipped.
// It is safe to call from the upload reader goroutine and the pipeline
// goroutine at the same time.
func (n *Notifier) Update(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("job", n.jobID).Interface("panic", r).Msg("Status channel panicked, update dropped")
		}
	}()

	if n.posted && text == n.last {
		return
	}

	if n.posted {
		err := n.ch.Edit(ctx, n.ref, text)
		if err == nil {
			n.last = text
			return
		}
		log.Debug().Err(err).Str("job", n.jobID).Msg("Status edit failed, posting a new message")
	}

	ref, err := n.ch.Post(ctx, text)
	if err != nil {
		log.Debug().Err(err).Str("job", n.jobID).Msg("Status post failed, update dropped")
		return
	}
	n.ref = ref
	n.posted = true
	n.last = text
}

// Last returns the most recent text that reached the channel.
func (n *Notifier) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
