package pipeline

import (
	"fmt"
	"strings"
)

// AspectRatio is the frame shape requested from the generation service.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// Duration bounds accepted for a request, in seconds.
const (
	MinDurationSeconds = 1
	MaxDurationSeconds = 60
)

// Request is an immutable, fully collected generation request.
type Request struct {
	Prompt          string
	AspectRatio     AspectRatio
	DurationSeconds int
	Credential      string
}

// Validate checks the request before it is allowed to occupy the job slot.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return NewError(KindInvalidInput, "prompt cannot be empty", nil)
	}
	if r.AspectRatio != AspectLandscape && r.AspectRatio != AspectPortrait {
		return NewError(KindInvalidInput, fmt.Sprintf("unsupported aspect ratio %q", r.AspectRatio), nil)
	}
	if r.DurationSeconds < MinDurationSeconds || r.DurationSeconds > MaxDurationSeconds {
		return NewError(KindInvalidInput,
			fmt.Sprintf("duration must be between %d and %d seconds", MinDurationSeconds, MaxDurationSeconds), nil)
	}
	if r.Credential == "" {
		return NewError(KindInvalidInput, "no API key set", nil)
	}
	return nil
}
