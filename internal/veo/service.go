// Package veo adapts the Gemini video generation API to the pipeline's
// GenerationService interface.
package veo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// DefaultModel is the Veo model used when none is configured.
const DefaultModel = "veo-2.0-generate-001"

// ClientFactory builds a Gemini client for an API key.
type ClientFactory func(ctx context.Context, apiKey string) (*genai.Client, error)

// NewGeminiClient creates a Gemini API client for the given key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Service submits and polls Veo operations. Clients are cached per API key,
// and each in-flight operation remembers the key it was submitted with so
// polling uses the same credential.
type Service struct {
	model     string
	newClient ClientFactory

	mu      sync.Mutex
	clients map[string]*genai.Client
	ops     map[pipeline.OperationHandle]string
}

// Compile-time interface check.
var (
	_ pipeline.GenerationService  = (*Service)(nil)
	_ pipeline.OperationForgetter = (*Service)(nil)
)

// NewService creates a Service for model. A nil factory selects NewGeminiClient.
func NewService(model string, factory ClientFactory) *Service {
	if model == "" {
		model = DefaultModel
	}
	if factory == nil {
		factory = NewGeminiClient
	}
	return &Service{
		model:     model,
		newClient: factory,
		clients:   make(map[string]*genai.Client),
		ops:       make(map[pipeline.OperationHandle]string),
	}
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.model
}

func keyID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

func (s *Service) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	id := keyID(apiKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		return c, nil
	}
	c, err := s.newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	s.clients[id] = c
	return c, nil
}

// Submit starts a video generation operation.
func (s *Service) Submit(ctx context.Context, req pipeline.Request) (*pipeline.Submission, error) {
	client, err := s.client(ctx, req.Credential)
	if err != nil {
		return nil, Classify(err)
	}

	log.Debug().
		Str("model", s.model).
		Str("aspectRatio", string(req.AspectRatio)).
		Int("durationSeconds", req.DurationSeconds).
		Msg("Calling GenerateVideos")

	op, err := client.Models.GenerateVideos(ctx, s.model, req.Prompt, nil, buildConfig(req))
	if err != nil {
		return nil, Classify(err)
	}

	sub, err := submissionFromOperation(op)
	if err != nil {
		return nil, err
	}
	if !sub.Done {
		s.mu.Lock()
		s.ops[sub.Handle] = keyID(req.Credential)
		s.mu.Unlock()
	}
	return sub, nil
}

// Poll fetches the current state of an operation started by Submit.
func (s *Service) Poll(ctx context.Context, handle pipeline.OperationHandle) (*pipeline.OperationStatus, error) {
	s.mu.Lock()
	id, ok := s.ops[handle]
	client := s.clients[id]
	s.mu.Unlock()
	if !ok || client == nil {
		return nil, pipeline.NewError(pipeline.KindMalformedResponse, fmt.Sprintf("unknown operation %q", handle), nil)
	}

	op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: string(handle)}, nil)
	if err != nil {
		return nil, Classify(err)
	}

	status := statusFromOperation(op)
	if status.Done {
		s.mu.Lock()
		delete(s.ops, handle)
		s.mu.Unlock()
	}
	return status, nil
}

// Forget drops the credential mapping kept for handle. It is called when
// polling stops early so cancelled and failed jobs do not leave entries behind.
func (s *Service) Forget(handle pipeline.OperationHandle) {
	s.mu.Lock()
	delete(s.ops, handle)
	s.mu.Unlock()
}

func buildConfig(req pipeline.Request) *genai.GenerateVideosConfig {
	return &genai.GenerateVideosConfig{
		AspectRatio:     string(req.AspectRatio),
		DurationSeconds: genai.Ptr(int32(req.DurationSeconds)),
		NumberOfVideos:  1,
	}
}
