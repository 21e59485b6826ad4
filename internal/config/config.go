// Package config reads process configuration from the environment, after
// optionally loading .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
	"github.com/fpang/gemini-video-bot/internal/veo"
)

// Default SSM parameter paths used when the secrets are not in the environment.
const (
	DefaultAPIKeyParam   = "/gemini-video-bot/prod/gemini-api-key"
	DefaultBotTokenParam = "/gemini-video-bot/prod/telegram-bot-token"
	DefaultNATSSubject   = "veo.jobs"
)

// Config is the full process configuration. Secrets (BotToken, GeminiAPIKey)
// may be empty here and resolved later through SSM.
type Config struct {
	BotToken     string
	OwnerID      int64
	GeminiAPIKey string
	Model        string

	PollInterval           time.Duration
	MaxPollDuration        time.Duration
	UploadProgressInterval time.Duration
	TempDir                string
	HistoryLimit           int

	ArchiveBucket string
	ArchivePrefix string
	JobsTable     string
	NATSURL       string
	NATSSubject   string
	EventBusName  string

	SSMAPIKeyParam   string
	SSMBotTokenParam string
}

// Load reads .env and .env.local when present, then the environment.
// Variables already set in the environment win over file values.
func Load() (Config, error) {
	return LoadFiles(".env", ".env.local")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are skipped.
func LoadFiles(paths ...string) (Config, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables. Every malformed value
// is reported; nothing is silently replaced by its default.
func FromEnv() (Config, error) {
	var errs []error

	c := Config{
		BotToken:         os.Getenv("BOT_TOKEN"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		Model:            getenv("VEO_MODEL", veo.DefaultModel),
		TempDir:          os.Getenv("ASSET_TEMP_DIR"),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:    getenv("ARCHIVE_PREFIX", "videos"),
		JobsTable:        os.Getenv("JOBS_TABLE"),
		NATSURL:          os.Getenv("NATS_URL"),
		NATSSubject:      getenv("NATS_SUBJECT", DefaultNATSSubject),
		EventBusName:     os.Getenv("EVENT_BUS_NAME"),
		SSMAPIKeyParam:   getenv("SSM_API_KEY_PARAM", DefaultAPIKeyParam),
		SSMBotTokenParam: getenv("SSM_BOT_TOKEN_PARAM", DefaultBotTokenParam),
	}

	if v := os.Getenv("OWNER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("OWNER_ID: %w", err))
		}
		c.OwnerID = id
	}

	c.PollInterval = duration("POLL_INTERVAL", pipeline.DefaultPollInterval, true, &errs)
	c.MaxPollDuration = duration("MAX_POLL_DURATION", 0, false, &errs)
	c.UploadProgressInterval = duration("UPLOAD_PROGRESS_INTERVAL", pipeline.DefaultUploadProgressInterval, true, &errs)

	c.HistoryLimit = pipeline.DefaultHistoryLimit
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("HISTORY_LIMIT: %w", err))
		case n <= 0:
			errs = append(errs, fmt.Errorf("HISTORY_LIMIT: must be positive, got %d", n))
		default:
			c.HistoryLimit = n
		}
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return c, nil
}

// Pipeline returns the orchestrator settings carried by c.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		PollInterval:           c.PollInterval,
		MaxPollDuration:        c.MaxPollDuration,
		UploadProgressInterval: c.UploadProgressInterval,
		TempDir:                c.TempDir,
	}
}

func duration(key string, def time.Duration, positive bool, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d < 0 || (positive && d == 0) {
		*errs = append(*errs, fmt.Errorf("%s: out of range: %s", key, v))
		return def
	}
	return d
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
