package veo

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// gRPC status codes that appear in operation errors.
const (
	rpcPermissionDenied  = 7
	rpcResourceExhausted = 8
	rpcUnauthenticated   = 16
)

// Classify maps an error from the Gemini SDK onto the pipeline taxonomy.
// Only structured fields (HTTP code, RPC status, ErrorInfo reason) are
// consulted; anything unrecognised is transient with the raw text kept.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return err
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return pipeline.NewError(pipeline.KindTransient, "Gemini request failed", err)
	}

	kind := kindForHTTP(apiErr.Code, apiErr.Status)
	if hasReason(apiErr.Details, "API_KEY_INVALID") {
		kind = pipeline.KindAuth
	}
	log.Debug().
		Int("code", apiErr.Code).
		Str("status", apiErr.Status).
		Str("kind", kind.String()).
		Msg("Classified Gemini API error")

	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	return pipeline.NewError(kind, "Gemini API error", errors.New(msg))
}

// asAPIError extracts a genai.APIError. The SDK returns it by value; the
// pointer form is accepted too.
func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

func kindForHTTP(code int, status string) pipeline.Kind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pipeline.KindAuth
	case http.StatusTooManyRequests:
		return pipeline.KindQuota
	}
	return kindForStatus(status)
}

func kindForRPC(code int, status string) pipeline.Kind {
	switch code {
	case rpcUnauthenticated, rpcPermissionDenied:
		return pipeline.KindAuth
	case rpcResourceExhausted:
		return pipeline.KindQuota
	}
	return kindForHTTP(code, status)
}

func kindForStatus(status string) pipeline.Kind {
	switch status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return pipeline.KindAuth
	case "RESOURCE_EXHAUSTED":
		return pipeline.KindQuota
	}
	return pipeline.KindTransient
}

// hasReason reports whether any google.rpc.ErrorInfo detail carries reason.
func hasReason(details []map[string]any, reason string) bool {
	for _, d := range details {
		if r, _ := d["reason"].(string); r == reason {
			return true
		}
	}
	return false
}
