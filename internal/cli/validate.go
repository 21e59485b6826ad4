package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/auth"
)

// PrepareDirectory makes sure dir exists, creating it and any parents when
// missing, and returns its absolute path. A path that exists but is not a
// directory is an error.
func PrepareDirectory(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", abs, err)
		}
		log.Info().Str("path", abs).Msg("Created working directory")
		return abs, nil
	case err != nil:
		return "", fmt.Errorf("access %s: %w", abs, err)
	case !info.IsDir():
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// KeyErrorHint turns a key lookup or validation failure into advice for
// whoever runs veo-cli.
func KeyErrorHint(err error) string {
	var valErr *auth.ValidationError
	if !errors.As(err, &valErr) {
		return "Could not check the Gemini API key"
	}
	switch valErr.Type {
	case auth.ErrTypeNoKey:
		return "No Gemini API key found. Export GEMINI_API_KEY or save the key to ~/.gemini-video-bot/api-key"
	case auth.ErrTypeInvalidKey:
		return "Gemini rejected the API key. Create a new key in Google AI Studio"
	case auth.ErrTypeNetworkError:
		return "Gemini could not be reached. Check the network and retry"
	case auth.ErrTypeQuotaExceeded:
		return "The Gemini quota for this key is used up. Retry later"
	default:
		return "Gemini API key check failed"
	}
}

// HandleValidationError logs the hint for err and exits.
func HandleValidationError(err error) {
	log.Fatal().Err(err).Msg(KeyErrorHint(err))
}
