package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

type fakeEventBridge struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, JobEvent) error {
	f.calls++
	return errors.New("down")
}
func (f *failingPublisher) Close() error { return errors.New("close failed") }

func snapshot(state pipeline.State, err error) pipeline.Snapshot {
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return pipeline.Snapshot{
		ID:              "job-1",
		Identity:        "42",
		State:           state,
		Prompt:          "a lighthouse",
		AspectRatio:     pipeline.AspectLandscape,
		DurationSeconds: 8,
		StartedAt:       start,
		UpdatedAt:       start.Add(time.Minute),
		Err:             err,
	}
}

func TestFromSnapshotFailureTypes(t *testing.T) {
	tests := []struct {
		kind pipeline.Kind
		want FailureType
	}{
		{pipeline.KindInvalidInput, FailureTypeValidation},
		{pipeline.KindAuth, FailureTypePermanent},
		{pipeline.KindMalformedResponse, FailureTypePermanent},
		{pipeline.KindCancelled, FailureTypeCancelled},
		{pipeline.KindQuota, FailureTypeRetryable},
		{pipeline.KindTransient, FailureTypeRetryable},
		{pipeline.KindDownloadFailed, FailureTypeRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			ev := FromSnapshot(snapshot(pipeline.StateFailed, pipeline.NewError(tt.kind, "x", nil)))
			if ev.FailureType != tt.want {
				t.Errorf("expected %s, got %s", tt.want, ev.FailureType)
			}
			if ev.ErrorKind != tt.kind.String() || !ev.Terminal {
				t.Errorf("unexpected event %+v", ev)
			}
		})
	}

	ok := FromSnapshot(snapshot(pipeline.StatePolling, nil))
	if ok.FailureType != "" || ok.Error != "" || ok.Terminal {
		t.Errorf("running job should carry no failure: %+v", ok)
	}
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{nc: conn, subject: "veo.jobs"}

	if err := p.Publish(context.Background(), FromSnapshot(snapshot(pipeline.StateSucceeded, nil))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(conn.subjects) != 1 || conn.subjects[0] != "veo.jobs.succeeded" {
		t.Fatalf("unexpected subjects %v", conn.subjects)
	}
	var ev JobEvent
	if err := json.Unmarshal(conn.payloads[0], &ev); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if ev.JobID != "job-1" || ev.AspectRatio != "16:9" {
		t.Errorf("unexpected payload %+v", ev)
	}

	if err := p.Close(); err != nil || !conn.drained {
		t.Errorf("expected Close to drain the connection")
	}
}

func TestEventBridgePublisher(t *testing.T) {
	eb := &fakeEventBridge{}
	p := NewEventBridgePublisher(eb, "video-events")

	if err := p.Publish(context.Background(), FromSnapshot(snapshot(pipeline.StateUploading, nil))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	entry := eb.inputs[0].Entries[0]
	if aws.ToString(entry.Source) != Source || aws.ToString(entry.DetailType) != DetailType {
		t.Errorf("unexpected entry %+v", entry)
	}
	if aws.ToString(entry.EventBusName) != "video-events" {
		t.Errorf("expected bus name, got %q", aws.ToString(entry.EventBusName))
	}

	eb.out = &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{{
			ErrorCode:    aws.String("ThrottlingException"),
			ErrorMessage: aws.String("slow down"),
		}},
	}
	if err := p.Publish(context.Background(), FromSnapshot(snapshot(pipeline.StateUploading, nil))); err == nil {
		t.Error("expected failed entry to surface as an error")
	}
}

func TestObserverIgnoresPublisherFailures(t *testing.T) {
	bad := &failingPublisher{}
	conn := &fakeConn{}
	obs := &Observer{Publishers: []Publisher{bad, &NATSPublisher{nc: conn, subject: "s"}, Nop{}}}

	obs.Observe(context.Background(), snapshot(pipeline.StateSubmitting, nil))

	if bad.calls != 1 || len(conn.subjects) != 1 {
		t.Errorf("expected every publisher to be called, got bad=%d nats=%d", bad.calls, len(conn.subjects))
	}
	if err := obs.Close(); err == nil {
		t.Error("expected close error to be reported")
	}
}
