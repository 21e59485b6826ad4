package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

const ownerID = 1001

// fakeSender records every chattable and answers with increasing message ids.
type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	videos   []string
	nextID   int
	failSend bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return tgbotapi.Message{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}
	if v, ok := c.(tgbotapi.VideoConfig); ok {
		if fr, ok := v.File.(tgbotapi.FileReader); ok {
			b, err := io.ReadAll(fr.Reader)
			if err != nil {
				return tgbotapi.Message{}, err
			}
			f.videos = append(f.videos, string(b))
		}
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every message and edit sent so far.
func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) lastText() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func newTestClient(s Sender) *Client {
	return NewClient(s, WithRateLimits(rate.Inf, rate.Inf, 1))
}

// fakeJobs is a scripted orchestrator.
type fakeJobs struct {
	startErr  error
	cancelErr error
	running   *pipeline.Snapshot
	last      *pipeline.Snapshot
	history   []pipeline.HistoryEntry

	started []pipeline.Request
	dests   []pipeline.Destination
	cancels int

	// cancelled, when set, receives a value for each Cancel call.
	cancelled chan struct{}
}

func (j *fakeJobs) StartJob(_ string, req pipeline.Request, dest pipeline.Destination) (*pipeline.JobHandle, error) {
	if j.startErr != nil {
		return nil, j.startErr
	}
	j.started = append(j.started, req)
	j.dests = append(j.dests, dest)
	return &pipeline.JobHandle{ID: "job-1"}, nil
}

func (j *fakeJobs) Cancel(string) error {
	j.cancels++
	if j.cancelled != nil {
		select {
		case j.cancelled <- struct{}{}:
		default:
		}
	}
	return j.cancelErr
}

func (j *fakeJobs) Status() (pipeline.Snapshot, bool) {
	if j.running == nil {
		return pipeline.Snapshot{}, false
	}
	return *j.running, true
}

func (j *fakeJobs) LastFinished() (pipeline.Snapshot, bool) {
	if j.last == nil {
		return pipeline.Snapshot{}, false
	}
	return *j.last, true
}

func (j *fakeJobs) History(string) []pipeline.HistoryEntry {
	return j.history
}

// fakeValidator accepts every key except the listed ones.
type fakeValidator struct {
	reject map[string]error
	seen   []string
}

func (v *fakeValidator) Validate(_ context.Context, key string) error {
	v.seen = append(v.seen, key)
	if err, ok := v.reject[key]; ok {
		return err
	}
	return nil
}

// stallingValidator holds every key check until release is closed.
type stallingValidator struct {
	entered chan struct{}
	release chan struct{}
}

func (v *stallingValidator) Validate(ctx context.Context, _ string) error {
	select {
	case v.entered <- struct{}{}:
	default:
	}
	select {
	case <-v.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// message builds a private-chat message; text starting with "/" is a command.
func message(from int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 77,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		n := strings.IndexByte(text, ' ')
		if n < 0 {
			n = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return msg
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

var errBoom = errors.New("boom")

func assertLastText(t *testing.T, s *fakeSender, want string) {
	t.Helper()
	if got := s.lastText(); got != want {
		t.Errorf("expected last reply %q, got %q", want, got)
	}
}
