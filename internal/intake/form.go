// Package intake collects a generation request one answer at a time and
// keeps per-identity settings between requests.
package intake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// Field is the answer the form is waiting for.
type Field int

const (
	AwaitingPrompt Field = iota
	AwaitingAspectRatio
	AwaitingDuration
	Complete
	Aborted
)

// Questions asked for each field.
const (
	AskPrompt      = "✍️ Please send your video prompt (short description):"
	AskAspectRatio = "📐 Choose aspect ratio: reply with 1 for 16:9 or 2 for 9:16"
	AskDuration    = "⏱️ Enter duration in seconds (1-60):"
)

// Values are the answers collected by a completed form.
type Values struct {
	Prompt          string
	AspectRatio     pipeline.AspectRatio
	DurationSeconds int
}

// Form is a linear state machine: prompt, then aspect ratio, then duration.
// A blank prompt or an out-of-range duration aborts the form.
type Form struct {
	awaiting Field
	values   Values
}

// NewForm returns a form waiting for the prompt.
func NewForm() *Form {
	return &Form{awaiting: AwaitingPrompt}
}

// Awaiting returns the field the next answer fills.
func (f *Form) Awaiting() Field {
	return f.awaiting
}

// Values returns the answers collected so far.
func (f *Form) Values() Values {
	return f.values
}

// Feed consumes one answer and returns the next question. The question is
// empty once the form is complete. A validation failure aborts the form and
// is returned as an invalid-input pipeline error.
func (f *Form) Feed(text string) (string, error) {
	text = strings.TrimSpace(text)

	switch f.awaiting {
	case AwaitingPrompt:
		if text == "" {
			f.awaiting = Aborted
			return "", pipeline.NewError(pipeline.KindInvalidInput, "prompt cannot be empty", nil)
		}
		f.values.Prompt = text
		f.awaiting = AwaitingAspectRatio
		return AskAspectRatio, nil

	case AwaitingAspectRatio:
		f.values.AspectRatio = ParseAspectRatio(text)
		f.awaiting = AwaitingDuration
		return AskDuration, nil

	case AwaitingDuration:
		d, err := strconv.Atoi(text)
		if err != nil || d < pipeline.MinDurationSeconds || d > pipeline.MaxDurationSeconds {
			f.awaiting = Aborted
			return "", pipeline.NewError(pipeline.KindInvalidInput,
				fmt.Sprintf("duration must be a number between %d and %d", pipeline.MinDurationSeconds, pipeline.MaxDurationSeconds), nil)
		}
		f.values.DurationSeconds = d
		f.awaiting = Complete
		return "", nil

	default:
		return "", fmt.Errorf("form is no longer accepting answers")
	}
}

// ParseAspectRatio maps "1" or "16:9" to landscape and anything else to portrait.
func ParseAspectRatio(text string) pipeline.AspectRatio {
	switch strings.TrimSpace(text) {
	case "1", string(pipeline.AspectLandscape):
		return pipeline.AspectLandscape
	default:
		return pipeline.AspectPortrait
	}
}
