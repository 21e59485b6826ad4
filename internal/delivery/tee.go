package delivery

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// Tee delivers one stream to a primary deliverer and copies it to an
// archive on the side. Only the primary's result is returned; archive
// failures are logged.
type Tee struct {
	Primary pipeline.Deliverer
	Archive pipeline.Deliverer
}

// Compile-time interface check.
var _ pipeline.Deliverer = (*Tee)(nil)

func (t *Tee) Deliver(ctx context.Context, d pipeline.Delivery) error {
	if t.Archive == nil {
		return t.Primary.Deliver(ctx, d)
	}

	pr, pw := io.Pipe()
	var g errgroup.Group
	g.Go(func() error {
		archived := d
		archived.Reader = pr
		if err := t.Archive.Deliver(ctx, archived); err != nil {
			log.Warn().Err(err).Msg("Archive delivery failed")
		}
		// Keep draining so the primary never blocks on the pipe.
		_, _ = io.Copy(io.Discard, pr)
		return nil
	})

	src := io.TeeReader(d.Reader, pw)
	primary := d
	primary.Reader = src
	err := t.Primary.Deliver(ctx, primary)
	if err == nil {
		// Forward anything the primary left unread so the archive is complete.
		_, err = io.Copy(io.Discard, src)
	}
	pw.CloseWithError(err)
	_ = g.Wait()
	return err
}
