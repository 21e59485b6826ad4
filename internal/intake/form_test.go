package intake

import (
	"testing"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

func TestForm_CompleteFlow(t *testing.T) {
	f := NewForm()

	next, err := f.Feed("  a lighthouse in a storm ")
	if err != nil || next != AskAspectRatio {
		t.Fatalf("prompt step: next=%q err=%v", next, err)
	}
	next, err = f.Feed("1")
	if err != nil || next != AskDuration {
		t.Fatalf("aspect step: next=%q err=%v", next, err)
	}
	next, err = f.Feed("8")
	if err != nil || next != "" {
		t.Fatalf("duration step: next=%q err=%v", next, err)
	}

	if f.Awaiting() != Complete {
		t.Errorf("expected complete, got %d", f.Awaiting())
	}
	want := Values{Prompt: "a lighthouse in a storm", AspectRatio: pipeline.AspectLandscape, DurationSeconds: 8}
	if f.Values() != want {
		t.Errorf("expected %+v, got %+v", want, f.Values())
	}
}

func TestForm_AbortsOnInvalidAnswers(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
	}{
		{"blank prompt", []string{"   "}},
		{"duration not a number", []string{"p", "2", "ten"}},
		{"duration zero", []string{"p", "2", "0"}},
		{"duration too long", []string{"p", "2", "61"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewForm()
			var err error
			for _, a := range tt.answers {
				_, err = f.Feed(a)
			}
			if pipeline.KindOf(err) != pipeline.KindInvalidInput {
				t.Errorf("expected invalid input, got %v", err)
			}
			if f.Awaiting() != Aborted {
				t.Errorf("expected aborted form, got %d", f.Awaiting())
			}
			if _, err := f.Feed("more"); err == nil {
				t.Error("aborted form should reject further answers")
			}
		})
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := map[string]pipeline.AspectRatio{
		"1":     pipeline.AspectLandscape,
		"16:9":  pipeline.AspectLandscape,
		" 1 ":   pipeline.AspectLandscape,
		"2":     pipeline.AspectPortrait,
		"9:16":  pipeline.AspectPortrait,
		"wide?": pipeline.AspectPortrait,
	}
	for in, want := range tests {
		if got := ParseAspectRatio(in); got != want {
			t.Errorf("ParseAspectRatio(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSettingsStore(t *testing.T) {
	s := NewSettingsStore()
	s.SetAPIKey("owner", "k1")
	s.SaveValues("owner", Values{Prompt: "p", AspectRatio: pipeline.AspectPortrait, DurationSeconds: 5})

	got := s.Get("owner")
	req := got.Request()
	if req.Credential != "k1" || req.Prompt != "p" || req.DurationSeconds != 5 || req.AspectRatio != pipeline.AspectPortrait {
		t.Errorf("unexpected request %+v", req)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}

	s.Reset("owner")
	if s.Get("owner") != (Settings{}) {
		t.Error("expected settings cleared after Reset")
	}
}
