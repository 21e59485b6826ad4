package pipeline

import (
	"context"
	"sync/atomic"
)

// Token is the cancellation flag of one job. Stages read it at every
// suspension point; Request also cancels the job context so blocking I/O
// returns early instead of waiting for the next check.
type Token struct {
	requested atomic.Bool
	cancel    context.CancelFunc
}

func newToken(cancel context.CancelFunc) *Token {
	return &Token{cancel: cancel}
}

// Request marks the job as cancelled. It is safe to call more than once.
func (t *Token) Request() {
	t.requested.Store(true)
	if t.cancel != nil {
		t.cancel()
	}
}

// Requested reports whether cancellation has been asked for.
func (t *Token) Requested() bool {
	return t.requested.Load()
}

// Check returns a cancellation error naming the stage when the flag is set.
func (t *Token) Check(stage string) error {
	if t.Requested() {
		return NewError(KindCancelled, stage+" cancelled", nil)
	}
	return nil
}
