package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// captureOutput redirects flushed documents into a buffer for the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	serviceName = "video-bot"
	defer func() { serviceName = "" }()

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("expected namespace TestNamespace, got %s", r.namespace)
	}
	if r.dimensions["Service"] != "video-bot" {
		t.Errorf("expected Service dimension video-bot, got %s", r.dimensions["Service"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	buf := captureOutput(t)
	initOnce.Do(func() {})
	serviceName = ""

	rec := New(Namespace)
	rec.Dimension("Operation", "generate")
	rec.Metric("LatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("CallCount", 1, UnitCount)
	rec.Property("jobId", "abc-123")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}

	if doc["Operation"] != "generate" {
		t.Errorf("expected Operation=generate, got %v", doc["Operation"])
	}
	if doc["LatencyMs"] != 1234.5 {
		t.Errorf("expected LatencyMs=1234.5, got %v", doc["LatencyMs"])
	}
	if doc["CallCount"] != float64(1) {
		t.Errorf("expected CallCount=1, got %v", doc["CallCount"])
	}
	if doc["jobId"] != "abc-123" {
		t.Errorf("expected jobId=abc-123, got %v", doc["jobId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := captureOutput(t)

	New("Test").Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	serviceName = ""
	rec := New("Test").
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if m := rec.metrics["Calls"]; m.Unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.Unit)
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestJobObserver_TerminalOnly(t *testing.T) {
	buf := captureOutput(t)
	serviceName = ""
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	obs := JobObserver{}
	obs.Observe(context.Background(), pipeline.Snapshot{ID: "j1", State: pipeline.StatePolling, StartedAt: start})
	if buf.Len() != 0 {
		t.Fatalf("expected no output for a running job, got %s", buf.String())
	}

	obs.Observe(context.Background(), pipeline.Snapshot{
		ID:        "j1",
		State:     pipeline.StateFailed,
		StartedAt: start,
		UpdatedAt: start.Add(90 * time.Second),
		Err:       pipeline.NewError(pipeline.KindQuota, "quota", errors.New("429")),
	})

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output: %v", err)
	}
	if doc["Outcome"] != "failed" || doc["errorKind"] != "quota" {
		t.Errorf("unexpected document %v", doc)
	}
	if doc["JobDurationMs"] != float64(90000) {
		t.Errorf("expected JobDurationMs=90000, got %v", doc["JobDurationMs"])
	}
}
