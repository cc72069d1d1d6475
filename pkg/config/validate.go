package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// defaults
const (
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultMaxRequestBody = 1 << 20 // 1 MiB
	defaultRateRPS        = 50
	defaultRateBurst      = 100

	defaultJobQueueCapacity = 4096
	defaultJobSweepInterval = 30 * time.Second
	defaultJobTimeout       = 60 * time.Second

	defaultAIProvider          = "genai"
	defaultAIModel             = "gemini-2.5-flash"
	defaultAIEmbeddingModel    = "text-embedding-004"
	defaultEmbeddingDimensions = 768
	defaultSummaryCooldown     = 15 * time.Minute
	defaultContextLimit        = 40
	defaultSearchLimit         = 10
	defaultAIRequestTimeout    = 45 * time.Second

	defaultTypingWindow     = 3 * time.Second
	defaultMessageMaxLength = 4000
	defaultLivePollTimeout  = 25 * time.Second

	defaultRetentionCron        = "0 3 * * *" // daily at 03:00
	defaultRetentionPeriod      = "30d"
	defaultRetentionTypingStale = time.Hour
	defaultRetentionBatchSize   = 500
	defaultRetentionLockTTL     = 300 * time.Second
	maxLivePollTimeout          = 2 * time.Minute
	maxWorkersPerLogicalCPUCore = 4
)

// ValidateConfig fills in defaults on the effective config and fails fast
// on values the server cannot run with.
func ValidateConfig(eff EffectiveConfigResult) error {
	c := eff.Config
	if c == nil {
		return fmt.Errorf("effective config is nil")
	}
	if strings.TrimSpace(eff.DBPath) == "" {
		return fmt.Errorf("database path is empty: set --db flag, KLIQ_DB_PATH env, or server.db_path in config")
	}

	// server
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Server.MaxRequestBody == 0 {
		c.Server.MaxRequestBody = SizeBytes(defaultMaxRequestBody)
	}

	// security
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}

	// jobs
	numCPU := runtime.NumCPU()
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = numCPU
	} else if c.Jobs.Workers > numCPU*maxWorkersPerLogicalCPUCore {
		c.Jobs.Workers = numCPU * maxWorkersPerLogicalCPUCore
	}
	if c.Jobs.QueueCapacity <= 0 {
		c.Jobs.QueueCapacity = defaultJobQueueCapacity
	}
	if c.Jobs.SweepInterval == 0 {
		c.Jobs.SweepInterval = Duration(defaultJobSweepInterval)
	}
	if c.Jobs.JobTimeout == 0 {
		c.Jobs.JobTimeout = Duration(defaultJobTimeout)
	}

	// ai
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider == "" {
		c.AI.Provider = defaultAIProvider
	}
	switch c.AI.Provider {
	case "genai":
		if strings.TrimSpace(c.AI.APIKey) == "" {
			return fmt.Errorf("ai.provider is genai but no api key is set: set ai.api_key, KLIQ_AI_API_KEY or GEMINI_API_KEY (or ai.provider: none)")
		}
	case "none":
	default:
		return fmt.Errorf("invalid ai.provider %q: must be genai or none", c.AI.Provider)
	}
	if c.AI.Model == "" {
		c.AI.Model = defaultAIModel
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = defaultAIEmbeddingModel
	}
	if c.AI.EmbeddingDimensions == 0 {
		c.AI.EmbeddingDimensions = defaultEmbeddingDimensions
	}
	if c.AI.EmbeddingDimensions < 0 {
		return fmt.Errorf("ai.embedding_dimensions must be positive")
	}
	if c.AI.SummaryCooldown == 0 {
		c.AI.SummaryCooldown = Duration(defaultSummaryCooldown)
	}
	if c.AI.ContextLimit <= 0 {
		c.AI.ContextLimit = defaultContextLimit
	}
	if c.AI.SearchLimit <= 0 {
		c.AI.SearchLimit = defaultSearchLimit
	}
	if c.AI.RequestTimeout == 0 {
		c.AI.RequestTimeout = Duration(defaultAIRequestTimeout)
	}

	// presence, messaging, live
	if c.Presence.TypingWindow <= 0 {
		c.Presence.TypingWindow = Duration(defaultTypingWindow)
	}
	if c.Messaging.MaxLength <= 0 {
		c.Messaging.MaxLength = defaultMessageMaxLength
	}
	if c.Live.PollTimeout <= 0 {
		c.Live.PollTimeout = Duration(defaultLivePollTimeout)
	}
	if c.Live.PollTimeout.Duration() > maxLivePollTimeout {
		return fmt.Errorf("live.poll_timeout must not exceed %s", maxLivePollTimeout)
	}

	// retention
	if c.Retention.Cron == "" {
		c.Retention.Cron = defaultRetentionCron
	}
	if c.Retention.Period == "" {
		c.Retention.Period = defaultRetentionPeriod
	}
	if c.Retention.TypingStaleAfter == 0 {
		c.Retention.TypingStaleAfter = Duration(defaultRetentionTypingStale)
	}
	if c.Retention.BatchSize <= 0 {
		c.Retention.BatchSize = defaultRetentionBatchSize
	}
	if c.Retention.LockTTL == 0 {
		c.Retention.LockTTL = Duration(defaultRetentionLockTTL)
	}
	if !gronx.New().IsValid(c.Retention.Cron) {
		return fmt.Errorf("invalid retention.cron: %q is not a valid cron expression", c.Retention.Cron)
	}
	if _, err := ParsePeriod(c.Retention.Period); err != nil {
		return fmt.Errorf("invalid retention.period: %w", err)
	}
	if c.Retention.TypingStaleAfter.Duration() < c.Presence.TypingWindow.Duration() {
		return fmt.Errorf("retention.typing_stale_after must be at least presence.typing_window")
	}
	return nil
}
