package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGen is a scripted GenerationService.
type fakeGen struct {
	submit func(ctx context.Context, req Request) (*Submission, error)
	poll   func(ctx context.Context, n int) (*OperationStatus, error)

	polls  atomic.Int32
	polled chan int

	mu        sync.Mutex
	forgotten []OperationHandle
}

func (g *fakeGen) Submit(ctx context.Context, req Request) (*Submission, error) {
	return g.submit(ctx, req)
}

func (g *fakeGen) Poll(ctx context.Context, _ OperationHandle) (*OperationStatus, error) {
	n := int(g.polls.Add(1))
	if g.polled != nil {
		select {
		case g.polled <- n:
		default:
		}
	}
	return g.poll(ctx, n)
}

func (g *fakeGen) Forget(h OperationHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgotten = append(g.forgotten, h)
}

func (g *fakeGen) forgottenHandles() []OperationHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]OperationHandle(nil), g.forgotten...)
}

func syncResult(uri string) func(context.Context, Request) (*Submission, error) {
	return func(context.Context, Request) (*Submission, error) {
		return &Submission{Done: true, Result: &Result{URI: uri}}, nil
	}
}

func asyncHandle(context.Context, Request) (*Submission, error) {
	return &Submission{Handle: "operations/test"}, nil
}

// fakeSource serves a fixed body or a fixed error.
type fakeSource struct {
	body   string
	err    error
	reader func() io.Reader
}

func (s *fakeSource) Open(context.Context, string, string) (io.ReadCloser, int64, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	if s.reader != nil {
		return io.NopCloser(s.reader()), -1, nil
	}
	return io.NopCloser(strings.NewReader(s.body)), int64(len(s.body)), nil
}

// recordingStatus records every text that reached the channel.
type recordingStatus struct {
	mu       sync.Mutex
	texts    []string
	posts    int
	edits    int
	failPost bool
	failEdit bool
}

func (r *recordingStatus) Post(_ context.Context, text string) (StatusRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPost {
		return 0, errors.New("post failed")
	}
	r.posts++
	r.texts = append(r.texts, text)
	return StatusRef(r.posts), nil
}

func (r *recordingStatus) Edit(_ context.Context, _ StatusRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEdit {
		return errors.New("edit failed")
	}
	r.edits++
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingStatus) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *recordingStatus) last() string {
	texts := r.all()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// bufferDeliverer drains the delivery into memory.
type bufferDeliverer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	onRead func()
}

func (d *bufferDeliverer) Deliver(_ context.Context, del Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.onRead == nil {
		_, err := io.Copy(&d.buf, del.Reader)
		return err
	}
	b := make([]byte, 1)
	for {
		d.onRead()
		n, err := del.Reader.Read(b)
		d.buf.Write(b[:n])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *bufferDeliverer) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func validRequest() Request {
	return Request{
		Prompt:          "a red fox running through snow",
		AspectRatio:     AspectLandscape,
		DurationSeconds: 8,
		Credential:      "test-key",
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		PollInterval: 10 * time.Millisecond,
		ChunkSize:    4,
		TempDir:      t.TempDir(),
	}
}

func waitDone(t *testing.T, h *JobHandle) Outcome {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish within 5s")
	}
	out, ok := h.Outcome()
	if !ok {
		t.Fatal("Outcome not available after Done")
	}
	return out
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected temp dir to be empty, found %d entries (first: %s)", len(entries), entries[0].Name())
	}
}

func assertSlotFree(t *testing.T, o *Orchestrator) {
	t.Helper()
	if s, ok := o.Status(); ok {
		t.Errorf("expected empty slot, found job %s in state %s", s.ID, s.State)
	}
}
