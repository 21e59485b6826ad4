package intake

import (
	"sync"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// Settings are the per-identity values remembered between requests.
type Settings struct {
	APIKey          string
	Prompt          string
	AspectRatio     pipeline.AspectRatio
	DurationSeconds int
}

// Request builds a pipeline request from the saved settings.
func (s Settings) Request() pipeline.Request {
	return pipeline.Request{
		Prompt:          s.Prompt,
		AspectRatio:     s.AspectRatio,
		DurationSeconds: s.DurationSeconds,
		Credential:      s.APIKey,
	}
}

// SettingsStore keeps Settings in memory, keyed by identity.
type SettingsStore struct {
	mu sync.Mutex
	m  map[string]Settings
}

// NewSettingsStore returns an empty store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{m: make(map[string]Settings)}
}

// Get returns a copy of the settings for identity.
func (s *SettingsStore) Get(identity string) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[identity]
}

// SetAPIKey stores a validated key.
func (s *SettingsStore) SetAPIKey(identity, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.m[identity]
	cur.APIKey = key
	s.m[identity] = cur
}

// SaveValues stores the answers of a completed form.
func (s *SettingsStore) SaveValues(identity string, v Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.m[identity]
	cur.Prompt = v.Prompt
	cur.AspectRatio = v.AspectRatio
	cur.DurationSeconds = v.DurationSeconds
	s.m[identity] = cur
}

// Reset clears everything stored for identity, including the key.
func (s *SettingsStore) Reset(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, identity)
}
