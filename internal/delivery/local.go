// Package delivery provides pipeline.Deliverer implementations that do not
// depend on a chat transport: a local directory, an S3 archive, and a tee
// that feeds two deliverers from one stream.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// LocalDir writes delivered assets into a directory.
type LocalDir struct {
	dir string
	now func() time.Time

	// LastPath is the path of the most recently written file.
	LastPath string
}

// Compile-time interface check.
var _ pipeline.Deliverer = (*LocalDir)(nil)

// NewLocalDir creates the directory if needed and returns a deliverer for it.
func NewLocalDir(dir string) (*LocalDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalDir{dir: dir, now: time.Now}, nil
}

// Deliver copies the stream to a timestamped file. A partial file is
// removed if the copy fails.
func (l *LocalDir) Deliver(ctx context.Context, d pipeline.Delivery) error {
	name := fmt.Sprintf("%s-%s", l.now().UTC().Format("20060102-150405"), filepath.Base(d.Name))
	path := filepath.Join(l.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	n, copyErr := io.Copy(f, contextReader{ctx: ctx, r: d.Reader})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(path)
		if copyErr != nil {
			return fmt.Errorf("write %s: %w", path, copyErr)
		}
		return fmt.Errorf("close %s: %w", path, closeErr)
	}

	l.LastPath = path
	log.Info().Str("path", path).Int64("bytes", n).Msg("Video saved")
	return nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
