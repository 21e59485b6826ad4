package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"info":  zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStartupLoggerJSON(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("GEMINI_LOG_LEVEL", "info")
	saved := log.Logger
	defer func() { log.Logger = saved }()

	var buf bytes.Buffer
	InitWithWriter(&buf)

	NewStartupLogger("video-bot").
		CommitHash("abc123").
		S3Bucket("archive", "videos").
		NATSSubject("jobs", "veo.jobs").
		Feature("archive", true).
		Config("model", "veo-2.0-generate-001").
		Log()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	process, _ := doc["process"].(map[string]any)
	if process["name"] != "video-bot" || process["commitHash"] != "abc123" {
		t.Errorf("unexpected process block: %v", process)
	}
	resources, _ := doc["resources"].(map[string]any)
	if _, ok := resources["natsSubjects"]; !ok {
		t.Errorf("expected natsSubjects in resources: %v", resources)
	}
	if _, ok := resources["dynamoTables"]; ok {
		t.Error("empty resource groups should be omitted")
	}
	features, _ := doc["features"].(map[string]any)
	if features["archive"] != true {
		t.Errorf("unexpected features: %v", features)
	}
}
