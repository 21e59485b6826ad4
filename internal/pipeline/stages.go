package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// submit calls the generation service once. Failures are not retried.
func (o *Orchestrator) submit(ctx context.Context, j *job) (*Submission, error) {
	if err := j.token.Check("submit"); err != nil {
		return nil, err
	}

	start := o.now()
	sub, err := o.gen.Submit(ctx, j.req)
	if err != nil {
		return nil, classify(err, KindTransient, "generation request failed")
	}
	if sub == nil || (!sub.Done && sub.Handle == "") {
		return nil, NewError(KindMalformedResponse, "generation service returned no operation", nil)
	}

	log.Info().
		Str("job", j.id).
		Str("operation", string(sub.Handle)).
		Bool("done", sub.Done).
		Dur("elapsed", o.now().Sub(start)).
		Msg("Generation request submitted")
	return sub, nil
}

// poll waits for the operation to finish. Status fetch failures are logged
// and retried after the normal interval; only cancellation, an expired
// MaxPollDuration, or a terminal operation status end the loop.
func (o *Orchestrator) poll(ctx context.Context, j *job, n *Notifier, handle OperationHandle) (*Result, error) {
	tracker := &progressTracker{
		startedAt: j.startedAt,
		horizon:   o.cfg.ProgressHorizon,
		ceiling:   o.cfg.ProgressCeiling,
	}
	pollStart := o.now()
	if f, ok := o.gen.(OperationForgetter); ok {
		defer f.Forget(handle)
	}

	for attempt := 1; ; attempt++ {
		if err := j.token.Check("generation"); err != nil {
			return nil, err
		}
		if o.cfg.MaxPollDuration > 0 && o.now().Sub(pollStart) > o.cfg.MaxPollDuration {
			return nil, NewError(KindTransient,
				fmt.Sprintf("generation did not finish within %s", o.cfg.MaxPollDuration), nil)
		}

		status, err := o.gen.Poll(ctx, handle)
		switch {
		case err != nil:
			if j.token.Requested() {
				return nil, NewError(KindCancelled, "generation cancelled", err)
			}
			log.Warn().Err(err).
				Str("job", j.id).
				Int("attempt", attempt).
				Msg("Operation status fetch failed, retrying")

		case status == nil:
			log.Warn().Str("job", j.id).Int("attempt", attempt).Msg("Operation status empty, retrying")

		case status.Done:
			if status.Err != nil {
				return nil, classify(status.Err, KindTransient, "generation failed")
			}
			if status.Result == nil || status.Result.URI == "" {
				return nil, NewError(KindMalformedResponse, "operation finished without a video", nil)
			}
			log.Info().Str("job", j.id).Int("polls", attempt).Msg("Generation finished")
			n.Update(ctx, MsgGenerationDone)
			return status.Result, nil

		default:
			now := o.now()
			if pct, changed := tracker.next(now, status.Progress); changed {
				n.Update(ctx, generatingText(now.Sub(j.startedAt), pct))
			}
			log.Debug().Str("job", j.id).Int("attempt", attempt).Int("progress", tracker.last).Msg("Operation still running")
		}

		if err := o.sleep(ctx, j.token, o.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// sleep waits for d or until the job is cancelled.
func (o *Orchestrator) sleep(ctx context.Context, token *Token, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		if token.Requested() {
			return NewError(KindCancelled, "generation cancelled", nil)
		}
		return NewError(KindTransient, "job context ended", ctx.Err())
	case <-t.C:
		return nil
	}
}

// Asset is a downloaded file waiting for delivery.
type Asset struct {
	Path     string
	Size     int64
	MIMEType string

	once sync.Once
}

// Release deletes the temp file. Calling it more than once is harmless.
func (a *Asset) Release() {
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", a.Path).Msg("Failed to remove temp asset")
		}
	})
}

// download streams the result into a temp file, checking the token between
// chunks. The partial file is removed on any failure.
func (o *Orchestrator) download(ctx context.Context, j *job, result *Result) (*Asset, error) {
	start := o.now()
	body, _, err := o.source.Open(ctx, result.URI, j.req.Credential)
	if err != nil {
		if j.token.Requested() {
			return nil, NewError(KindCancelled, "download cancelled", err)
		}
		return nil, classify(err, KindDownloadFailed, "download request failed")
	}
	defer body.Close()

	f, err := os.CreateTemp(o.cfg.TempDir, "veo-*.mp4")
	if err != nil {
		return nil, NewError(KindDownloadFailed, "create temp file", err)
	}
	asset := &Asset{Path: f.Name(), MIMEType: result.MIMEType}
	kept := false
	defer func() {
		if !kept {
			f.Close()
			asset.Release()
		}
	}()

	buf := make([]byte, o.cfg.ChunkSize)
	var written int64
	for {
		if err := j.token.Check("download"); err != nil {
			return nil, err
		}
		nr, rerr := body.Read(buf)
		if nr > 0 {
			nw, werr := f.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return nil, NewError(KindDownloadFailed, "write temp file", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if j.token.Requested() {
				return nil, NewError(KindCancelled, "download cancelled", rerr)
			}
			return nil, NewError(KindDownloadFailed, "read response body", rerr)
		}
	}

	if err := f.Close(); err != nil {
		return nil, NewError(KindDownloadFailed, "close temp file", err)
	}
	asset.Size = written
	kept = true

	log.Info().
		Str("job", j.id).
		Str("path", asset.Path).
		Int64("bytes", written).
		Dur("elapsed", o.now().Sub(start)).
		Msg("Asset downloaded")
	return asset, nil
}

// upload streams the asset to the job's deliverer with throttled progress.
// The asset is released whatever the outcome.
func (o *Orchestrator) upload(ctx context.Context, j *job, n *Notifier, asset *Asset) error {
	defer asset.Release()

	f, err := os.Open(asset.Path)
	if err != nil {
		return NewError(KindUploadFailed, "open asset", err)
	}
	defer f.Close()

	n.Update(ctx, MsgUploading)
	start := o.now()
	limiter := rate.NewLimiter(rate.Every(o.cfg.UploadProgressInterval), 1)
	// The first report would fire immediately and duplicate MsgUploading.
	limiter.AllowN(start, 1)

	reader := &progressReader{
		r:     f,
		total: asset.Size,
		token: j.token,
		report: func(sent, total int64) {
			now := o.now()
			if !limiter.AllowN(now, 1) {
				return
			}
			n.Update(ctx, uploadingText(sent, total, now.Sub(start)))
		},
	}

	err = j.dest.Delivery.Deliver(ctx, Delivery{
		Reader:   reader,
		Size:     asset.Size,
		Name:     "video.mp4",
		Caption:  fmt.Sprintf("✅ Your video (prompt: %s)", j.req.Prompt),
		MIMEType: asset.MIMEType,
	})
	if err != nil {
		if j.token.Requested() {
			return NewError(KindCancelled, "upload cancelled", err)
		}
		return classify(err, KindUploadFailed, "delivery failed")
	}

	log.Info().
		Str("job", j.id).
		Int64("bytes", asset.Size).
		Dur("elapsed", o.now().Sub(start)).
		Msg("Asset delivered")
	return nil
}

// progressReader reports bytes consumed by the deliverer and fails reads
// once cancellation is requested.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	token  *Token
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.token.Check("upload"); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
