package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/gemini-video-bot/internal/metrics"
	"github.com/fpang/gemini-video-bot/internal/veo"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API quota has been exceeded.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ModelLister is satisfied by genai.Client.Models.
type ModelLister interface {
	List(ctx context.Context, config *genai.ListModelsConfig) (genai.Page[genai.Model], error)
}

// Validator checks keys by building a client for each one.
type Validator struct {
	NewClient veo.ClientFactory
}

// Validate builds a client for apiKey and runs ValidateAPIKey against it.
func (v Validator) Validate(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return &ValidationError{Type: ErrTypeNoKey, Message: "no API key provided"}
	}
	factory := v.NewClient
	if factory == nil {
		factory = veo.NewGeminiClient
	}
	client, err := factory(ctx, apiKey)
	if err != nil {
		return &ValidationError{Type: ErrTypeUnknown, Message: "failed to create Gemini client", Err: err}
	}
	return ValidateAPIKey(ctx, client.Models)
}

// ValidateAPIKey verifies the key with a one-item model list, the cheapest
// authenticated call available. It returns nil if the key is valid, or a
// ValidationError whose Type indicates the nature of the failure.
func ValidateAPIKey(ctx context.Context, models ModelLister) error {
	log.Debug().Msg("Validating API key with Gemini API")

	start := time.Now()
	_, err := models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	if err != nil {
		valErr = classifyError(err)
		result = valErr.Type.String()
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Metric("ApiKeyValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ApiKeyValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("API key validation result")

	if valErr != nil {
		return valErr
	}
	log.Info().Msg("API key validated successfully")
	return nil
}

// classifyError analyzes an error and returns a ValidationError with the appropriate type.
func classifyError(err error) *ValidationError {
	var v genai.APIError
	if errors.As(err, &v) {
		return classifyAPIError(v)
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return classifyAPIError(*p)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("Network error during API validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "Network error - check your internet connection",
			Err:     err,
		}
	}

	log.Error().Err(err).Msg("Unknown error during API validation")
	return &ValidationError{
		Type:    ErrTypeUnknown,
		Message: "Failed to validate API key",
		Err:     err,
	}
}

// classifyAPIError categorizes a Google API error.
func classifyAPIError(err genai.APIError) *ValidationError {
	for _, d := range err.Details {
		if reason, _ := d["reason"].(string); reason == "API_KEY_INVALID" {
			log.Error().Int("code", err.Code).Msg("API key rejected")
			return &ValidationError{
				Type:    ErrTypeInvalidKey,
				Message: "API key is invalid",
				Err:     err,
			}
		}
	}

	switch {
	case err.Code == http.StatusUnauthorized || err.Code == http.StatusForbidden:
		log.Error().Int("code", err.Code).Msg("Authentication failed - invalid API key")
		return &ValidationError{
			Type:    ErrTypeInvalidKey,
			Message: "API key is invalid, expired, or lacks permissions",
			Err:     err,
		}

	case err.Code == http.StatusBadRequest:
		log.Error().Int("code", err.Code).Msg("Bad request - possibly invalid API key format")
		return &ValidationError{
			Type:    ErrTypeInvalidKey,
			Message: "Bad request - API key may be malformed",
			Err:     err,
		}

	case err.Code == http.StatusTooManyRequests || err.Status == "RESOURCE_EXHAUSTED":
		log.Error().Int("code", err.Code).Msg("Rate limit exceeded")
		return &ValidationError{
			Type:    ErrTypeQuotaExceeded,
			Message: "API rate limit exceeded - try again later",
			Err:     err,
		}

	case err.Code >= 500:
		log.Error().Int("code", err.Code).Msg("Server error during validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "Gemini API server error - try again later",
			Err:     err,
		}

	default:
		log.Error().Int("code", err.Code).Str("message", err.Message).Msg("Google API error")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: err.Message,
			Err:     err,
		}
	}
}
