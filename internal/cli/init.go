package cli

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/auth"
)

// KeyValidator checks a Gemini API key.
type KeyValidator interface {
	Validate(ctx context.Context, apiKey string) error
}

// InitAPIKey resolves the Gemini API key and validates it.
// Returns the key ready for use, or exits fatally on failure.
func InitAPIKey(ctx context.Context, v KeyValidator) string {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		HandleValidationError(err)
	}

	if err := v.Validate(ctx, apiKey); err != nil {
		HandleValidationError(err)
	}

	log.Info().Str("key", auth.MaskKey(apiKey)).Msg("Gemini API key accepted")
	return apiKey
}
