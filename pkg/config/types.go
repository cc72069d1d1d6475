package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Jobs      JobsConfig      `yaml:"jobs"`
	AI        AIConfig        `yaml:"ai"`
	Presence  PresenceConfig  `yaml:"presence"`
	Messaging MessagingConfig `yaml:"messaging"`
	Live      LiveConfig      `yaml:"live"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds http listener and storage settings.
type ServerConfig struct {
	Address        string    `yaml:"address"`
	Port           int       `yaml:"port"`
	DBPath         string    `yaml:"db_path"`
	ReadTimeout    Duration  `yaml:"read_timeout"`
	WriteTimeout   Duration  `yaml:"write_timeout"`
	MaxRequestBody SizeBytes `yaml:"max_request_body"`
}

// SecurityConfig holds api keys, signing keys and request limits.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
	// SigningKeys sign user ids for frontend calls. Backend keys are also
	// accepted as signing keys.
	SigningKeys []string `yaml:"signing_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// JobsConfig controls the background job worker pool.
type JobsConfig struct {
	Workers       int      `yaml:"workers"`
	QueueCapacity int      `yaml:"queue_capacity"`
	SweepInterval Duration `yaml:"sweep_interval"`
	JobTimeout    Duration `yaml:"job_timeout"`
}

// AIConfig selects the model provider and tunes the assist pipeline.
type AIConfig struct {
	Provider            string   `yaml:"provider"` // "genai" or "none"
	APIKey              string   `yaml:"api_key"`
	Model               string   `yaml:"model"`
	EmbeddingModel      string   `yaml:"embedding_model"`
	EmbeddingDimensions int      `yaml:"embedding_dimensions"`
	SummaryCooldown     Duration `yaml:"summary_cooldown"`
	ContextLimit        int      `yaml:"context_limit"`
	SearchLimit         int      `yaml:"search_limit"`
	RequestTimeout      Duration `yaml:"request_timeout"`
}

// PresenceConfig holds ephemeral state windows.
type PresenceConfig struct {
	TypingWindow Duration `yaml:"typing_window"`
}

// MessagingConfig holds message validation limits.
type MessagingConfig struct {
	MaxLength int `yaml:"max_length"`
}

// LiveConfig tunes the long-poll invalidation endpoint.
type LiveConfig struct {
	PollTimeout Duration `yaml:"poll_timeout"`
}

// RetentionConfig holds configuration for the pruning runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// Period is how long a superseded AI artifact is kept, e.g. "30d".
	Period           string   `yaml:"period"`
	TypingStaleAfter Duration `yaml:"typing_stale_after"`
	BatchSize        int      `yaml:"batch_size"`
	DryRun           bool     `yaml:"dry_run"`
	LockTTL          Duration `yaml:"lock_ttl"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

// ParsePeriod parses retention periods. A trailing "d" means days; anything
// else goes through time.ParseDuration. Empty means 30 days.
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 30 * 24 * time.Hour, nil
	}
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("invalid days retention: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
