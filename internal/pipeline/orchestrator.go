// Package pipeline runs long media-generation jobs: submit to the generator,
// poll until the operation finishes, download the asset to a temp file, and
// deliver it, while keeping one status message up to date.
//
// The Orchestrator owns a single job slot. At most one job is non-terminal
// at any time, and the slot is released on every exit path, including
// cancellation and panics inside a stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultPollInterval           = 5 * time.Second
	DefaultUploadProgressInterval = 2 * time.Second
	DefaultProgressHorizon        = 120 * time.Second
	DefaultProgressCeiling        = 95
	DefaultChunkSize              = 1 << 20

	terminalNotifyTimeout = 30 * time.Second
	observerTimeout       = 10 * time.Second
)

// Config tunes the stages. The zero value selects the defaults above and an
// unbounded poll duration.
type Config struct {
	PollInterval time.Duration
	// MaxPollDuration ends polling with a transient error once exceeded.
	// Zero means poll until the service reports done or the job is cancelled.
	MaxPollDuration        time.Duration
	UploadProgressInterval time.Duration
	// ProgressHorizon is the elapsed time at which the synthetic estimate
	// would reach 100 percent.
	ProgressHorizon time.Duration
	ProgressCeiling int
	ChunkSize       int
	// TempDir holds downloaded assets. Empty means os.TempDir().
	TempDir string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.UploadProgressInterval <= 0 {
		c.UploadProgressInterval = DefaultUploadProgressInterval
	}
	if c.ProgressHorizon <= 0 {
		c.ProgressHorizon = DefaultProgressHorizon
	}
	if c.ProgressCeiling <= 0 || c.ProgressCeiling > 100 {
		c.ProgressCeiling = DefaultProgressCeiling
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// Destination bundles where a job reports status and delivers its asset.
type Destination struct {
	Status   StatusChannel
	Delivery Deliverer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithLedger replaces the default in-memory history ledger.
func WithLedger(l *Ledger) Option {
	return func(o *Orchestrator) { o.history = l }
}

// WithClock replaces time.Now for elapsed-time and throttling decisions.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator sequences the stages of one job at a time.
type Orchestrator struct {
	cfg       Config
	gen       GenerationService
	source    AssetSource
	history   *Ledger
	observers []Observer
	dispatch  *dispatcher
	now       func() time.Time

	mu     sync.Mutex
	active *job
	last   *Snapshot
}

// New creates an Orchestrator.
func New(gen GenerationService, source AssetSource, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.withDefaults(),
		gen:     gen,
		source:  source,
		history: NewLedger(DefaultHistoryLimit),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.dispatch = newDispatcher(o.observers)
	return o
}

// StartJob starts the pipeline for req in a new goroutine and returns
// immediately. An occupied slot is reported as ErrAlreadyRunning before the
// request is looked at, and the running job is left untouched. Otherwise an
// invalid request is rejected with InvalidInput and never occupies the slot.
func (o *Orchestrator) StartJob(identity string, req Request, dest Destination) (*JobHandle, error) {
	o.mu.Lock()
	if o.active != nil {
		running := o.active.id
		o.mu.Unlock()
		log.Warn().Str("identity", identity).Str("running", running).Msg("Job rejected, slot occupied")
		return nil, ErrAlreadyRunning
	}
	if err := req.Validate(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if dest.Status == nil || dest.Delivery == nil {
		o.mu.Unlock()
		return nil, NewError(KindInvalidInput, "destination needs a status channel and a deliverer", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := o.now()
	j := &job{
		id:        uuid.New().String(),
		identity:  identity,
		req:       req,
		dest:      dest,
		token:     newToken(cancel),
		startedAt: now,
		state:     StateSubmitting,
		updatedAt: now,
		done:      make(chan struct{}),
	}
	o.active = j
	snap := j.snapshot()
	o.mu.Unlock()

	log.Info().
		Str("job", j.id).
		Str("identity", identity).
		Str("aspectRatio", string(req.AspectRatio)).
		Int("durationSeconds", req.DurationSeconds).
		Msg("Job accepted")

	o.notifyObservers(snap)
	go o.run(ctx, cancel, j)

	return &JobHandle{ID: j.id, j: j}, nil
}

// Cancel requests cancellation of the active job. An empty id matches any
// active job. Cancellation is advisory: stages observe it at their next
// suspension point.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	j := o.active
	if j == nil || (id != "" && j.id != id) {
		o.mu.Unlock()
		return ErrNoActiveJob
	}
	j.token.Request()
	o.mu.Unlock()

	log.Info().Str("job", j.id).Msg("Cancellation requested")
	return nil
}

// Status returns a snapshot of the active job.
func (o *Orchestrator) Status() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Snapshot{}, false
	}
	return o.active.snapshot(), true
}

// LastFinished returns the snapshot of the most recent terminal job.
func (o *Orchestrator) LastFinished() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Snapshot{}, false
	}
	return *o.last, true
}

// Flush waits until every lifecycle snapshot published so far has been
// handed to the observers.
func (o *Orchestrator) Flush(ctx context.Context) error {
	return o.dispatch.flush(ctx)
}

// Shutdown cancels the active job, waits for it to finish unwinding, and
// then drains the observer queue. Observers receive nothing published after
// Shutdown returns. It returns ctx.Err() if ctx ends first.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	j := o.active
	if j != nil {
		j.token.Request()
	}
	o.mu.Unlock()

	if j != nil {
		log.Info().Str("job", j.id).Msg("Cancelling running job for shutdown")
		select {
		case <-j.done:
		case <-ctx.Done():
			return fmt.Errorf("job %s still running: %w", j.id, ctx.Err())
		}
	}
	if err := o.dispatch.close(ctx); err != nil {
		return fmt.Errorf("drain job observers: %w", err)
	}
	return nil
}

// History returns the recent results recorded for identity.
func (o *Orchestrator) History(identity string) []HistoryEntry {
	return o.history.List(identity)
}

// transition advances the job state. Backward moves are ignored.
func (o *Orchestrator) transition(j *job, s State) {
	o.mu.Lock()
	if s <= j.state {
		o.mu.Unlock()
		return
	}
	j.state = s
	j.updatedAt = o.now()
	snap := j.snapshot()
	o.mu.Unlock()

	log.Debug().Str("job", j.id).Str("state", s.String()).Msg("Job state changed")
	o.notifyObservers(snap)
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, j *job) {
	n := NewNotifier(j.dest.Status, j.id)
	var out Outcome

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job", j.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Job pipeline panicked")
			out = Outcome{State: StateFailed, Err: NewError(KindTransient, fmt.Sprintf("internal error: %v", r), nil)}
		}
		cancel()
		o.finish(j, n, out)
	}()

	out = o.execute(ctx, j, n)
}

// execute runs the stages in order and returns the job outcome.
func (o *Orchestrator) execute(ctx context.Context, j *job, n *Notifier) Outcome {
	n.Update(ctx, MsgSubmitting)
	sub, err := o.submit(ctx, j)
	if err != nil {
		return failed(err)
	}

	result := sub.Result
	if !sub.Done {
		o.transition(j, StatePolling)
		result, err = o.poll(ctx, j, n, sub.Handle)
		if err != nil {
			return failed(err)
		}
	}
	if result == nil || result.URI == "" {
		return failed(NewError(KindMalformedResponse, "operation finished without a video", nil))
	}

	if err := j.token.Check("download"); err != nil {
		return failed(err)
	}
	o.transition(j, StateDownloading)
	n.Update(ctx, MsgDownloading)
	asset, err := o.download(ctx, j, result)
	if err != nil {
		return failed(err)
	}
	defer asset.Release()

	if err := j.token.Check("upload"); err != nil {
		return failed(err)
	}
	o.transition(j, StateUploading)
	if err := o.upload(ctx, j, n, asset); err != nil {
		return failed(err)
	}

	return Outcome{State: StateSucceeded, ResultURI: result.URI, AssetBytes: asset.Size}
}

func failed(err error) Outcome {
	return Outcome{State: StateFailed, Err: err}
}

// finish publishes the terminal state, releases the slot, and records history.
func (o *Orchestrator) finish(j *job, n *Notifier, out Outcome) {
	defer close(j.done)

	// Anything that failed after a cancel request is reported as cancelled.
	if out.Err != nil && (j.token.Requested() || errors.Is(out.Err, ErrCancelled)) {
		out.State = StateCancelled
		if !errors.Is(out.Err, ErrCancelled) {
			out.Err = NewError(KindCancelled, "generation cancelled", out.Err)
		}
	}
	out.FinishedAt = o.now()

	o.mu.Lock()
	j.outcome = out
	j.state = out.State
	j.updatedAt = out.FinishedAt
	snap := j.snapshot()
	if o.active == j {
		o.active = nil
	}
	o.last = &snap
	o.mu.Unlock()

	elapsed := out.FinishedAt.Sub(j.startedAt)
	evt := log.Info()
	if out.State == StateFailed {
		evt = log.Error().Err(out.Err).Str("kind", KindOf(out.Err).String())
	}
	evt.Str("job", j.id).Str("state", out.State.String()).Dur("elapsed", elapsed).Msg("Job finished")

	if out.State == StateSucceeded {
		o.history.Record(j.identity, HistoryEntry{Timestamp: out.FinishedAt, ResultReference: out.ResultURI})
	}

	ctx, cancel := context.WithTimeout(context.Background(), terminalNotifyTimeout)
	defer cancel()
	n.Update(ctx, UserMessage(out.Err))

	o.notifyObservers(snap)
}

// notifyObservers queues snap for the observers without waiting on them.
func (o *Orchestrator) notifyObservers(snap Snapshot) {
	o.dispatch.publish(snap)
}
