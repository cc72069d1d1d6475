package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses the three supported flags from args.
func ParseConfigFlags(args []string) (Flags, error) {
	fset := pflag.NewFlagSet("kliq", pflag.ContinueOnError)
	addr := fset.String("addr", ":8080", "HTTP listen address")
	db := fset.String("db", "./.database", "Pebble DB path")
	cfg := fset.StringP("config", "c", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}
	set := make(map[string]bool)
	fset.Visit(func(f *pflag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DB: *db, Config: *cfg, Set: set}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func splitAddr(v string) (string, int) {
	h, p, err := net.SplitHostPort(v)
	if err != nil {
		return v, 0
	}
	pi, _ := strconv.Atoi(p)
	return h, pi
}

// ParseConfigEnvs loads KLIQ_* environment variables into a new Config and
// reports whether any were set.
func ParseConfigEnvs() (*Config, bool) {
	envCfg := &Config{}
	used := false
	get := func(name string) string {
		v := os.Getenv("KLIQ_" + name)
		if v != "" {
			used = true
		}
		return v
	}
	atoi := func(name string, dst *int) {
		if v := get(name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *Duration) {
		if v := get(name); v != "" {
			if d, err := parseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	// server
	if v := get("ADDR"); v != "" {
		envCfg.Server.Address, envCfg.Server.Port = splitAddr(v)
	} else {
		envCfg.Server.Address = get("SERVER_ADDRESS")
		atoi("SERVER_PORT", &envCfg.Server.Port)
	}
	envCfg.Server.DBPath = get("DB_PATH")
	dur("SERVER_READ_TIMEOUT", &envCfg.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &envCfg.Server.WriteTimeout)
	if v := get("SERVER_MAX_REQUEST_BODY"); v != "" {
		if s, err := parseSize(v); err == nil {
			envCfg.Server.MaxRequestBody = s
		}
	}

	// security
	envCfg.Security.CORS.AllowedOrigins = parseList(get("CORS_ORIGINS"))
	if v := get("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	atoi("RATE_BURST", &envCfg.Security.RateLimit.Burst)
	envCfg.Security.IPWhitelist = parseList(get("IP_WHITELIST"))
	envCfg.Security.APIKeys.Backend = parseList(get("API_BACKEND_KEYS"))
	envCfg.Security.APIKeys.Frontend = parseList(get("API_FRONTEND_KEYS"))
	envCfg.Security.APIKeys.Admin = parseList(get("API_ADMIN_KEYS"))
	envCfg.Security.SigningKeys = parseList(get("SIGNING_KEYS"))

	// logging
	envCfg.Logging.Level = strings.TrimSpace(get("LOG_LEVEL"))

	// jobs
	atoi("JOBS_WORKERS", &envCfg.Jobs.Workers)
	atoi("JOBS_QUEUE_CAPACITY", &envCfg.Jobs.QueueCapacity)
	dur("JOBS_SWEEP_INTERVAL", &envCfg.Jobs.SweepInterval)
	dur("JOBS_TIMEOUT", &envCfg.Jobs.JobTimeout)

	// ai
	envCfg.AI.Provider = strings.ToLower(strings.TrimSpace(get("AI_PROVIDER")))
	envCfg.AI.APIKey = get("AI_API_KEY")
	if envCfg.AI.APIKey == "" {
		envCfg.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	envCfg.AI.Model = get("AI_MODEL")
	envCfg.AI.EmbeddingModel = get("AI_EMBEDDING_MODEL")
	atoi("AI_EMBEDDING_DIMENSIONS", &envCfg.AI.EmbeddingDimensions)
	dur("AI_SUMMARY_COOLDOWN", &envCfg.AI.SummaryCooldown)
	atoi("AI_CONTEXT_LIMIT", &envCfg.AI.ContextLimit)
	atoi("AI_SEARCH_LIMIT", &envCfg.AI.SearchLimit)
	dur("AI_REQUEST_TIMEOUT", &envCfg.AI.RequestTimeout)

	// presence, messaging, live
	dur("TYPING_WINDOW", &envCfg.Presence.TypingWindow)
	atoi("MESSAGE_MAX_LENGTH", &envCfg.Messaging.MaxLength)
	dur("LIVE_POLL_TIMEOUT", &envCfg.Live.PollTimeout)

	// retention
	if v := get("RETENTION_ENABLED"); v != "" {
		envCfg.Retention.Enabled = parseBool(v)
	}
	envCfg.Retention.Cron = get("RETENTION_CRON")
	envCfg.Retention.Period = get("RETENTION_PERIOD")
	dur("RETENTION_TYPING_STALE_AFTER", &envCfg.Retention.TypingStaleAfter)
	atoi("RETENTION_BATCH_SIZE", &envCfg.Retention.BatchSize)
	if v := get("RETENTION_DRY_RUN"); v != "" {
		envCfg.Retention.DryRun = parseBool(v)
	}
	dur("RETENTION_LOCK_TTL", &envCfg.Retention.LockTTL)

	return envCfg, used
}

// LoadEffectiveConfig decides which source to use. If --config is set only
// the config file is used. Otherwise the config file is used when present,
// else the environment. --addr and --db override the chosen source.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	switch {
	case fileExists:
		res.Config = fileCfg
		res.Source = "config"
	case envCfg != nil:
		res.Config = envCfg
		res.Source = "env"
	default:
		res.Config = &Config{}
		res.Source = "flags"
	}

	cfg := res.Config
	if flags.Set["addr"] {
		cfg.Server.Address, cfg.Server.Port = splitAddr(flags.Addr)
		res.Source = "flags"
	}
	if flags.Set["db"] || strings.TrimSpace(cfg.Server.DBPath) == "" {
		cfg.Server.DBPath = flags.DB
		if flags.Set["db"] {
			res.Source = "flags"
		}
	}
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Server.DBPath
	return res, nil
}
