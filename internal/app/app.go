package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/yz174/kliq/internal/retention"
	"github.com/yz174/kliq/pkg/ai"
	"github.com/yz174/kliq/pkg/api/auth"
	"github.com/yz174/kliq/pkg/api/handlers"
	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/conversations"
	"github.com/yz174/kliq/pkg/embedding"
	"github.com/yz174/kliq/pkg/jobs"
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/messaging"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/presence"
	"github.com/yz174/kliq/pkg/search"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/timeutil"
	"github.com/yz174/kliq/pkg/users"
)

// App groups server state and components.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	store     *store.Store
	proc      *jobs.Processor
	retention *retention.Manager
	gateway   *auth.Gateway
	handlers  *handlers.Handlers
	srv       *fasthttp.Server
	ln        net.Listener

	// base parents every request-scoped service call; cancelled first on
	// shutdown so long-polls release their connections.
	base       context.Context
	cancelBase context.CancelFunc

	shutdownOnce sync.Once
	state        string
}

// Options overrides runtime collaborators. Zero values select production
// defaults.
type Options struct {
	Clock    timeutil.Clock
	Provider llm.Provider
	// Listener replaces binding eff.Addr.
	Listener net.Listener
}

// New opens the store and builds every service. It does not start
// background workers or the listener; Run does that.
func New(eff config.EffectiveConfigResult, version string, opts Options) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config
	clock := timeutil.Or(opts.Clock)

	config.SetRuntime(config.RuntimeFromConfig(cfg))
	logConfigSummary(eff)

	stateDir := eff.DBPath + ".state"
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", stateDir, err)
	}
	if err := logger.AttachAuditFileSink(filepath.Join(stateDir, "audit")); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	provider := opts.Provider
	if provider == nil {
		p, err := llm.New(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("failed to init ai provider: %w", err)
		}
		provider = p
	}

	hub := live.New()
	s, err := store.Open(eff.DBPath, store.Options{Clock: clock, Notifier: hub})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	proc := jobs.NewProcessor(s, cfg.Jobs)
	pipeline := embedding.New(s, provider, cfg.AI.EmbeddingDimensions)
	orchestrator := ai.New(s, provider, clock, ai.Options{
		SummaryCooldown: cfg.AI.SummaryCooldown.Duration(),
		ContextLimit:    cfg.AI.ContextLimit,
	})
	proc.RegisterHandler(models.JobEmbed, pipeline.HandleJob)
	proc.RegisterHandler(models.JobAI, orchestrator.HandleJob)

	rm, err := retention.New(s, cfg.Retention, stateDir, clock)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	base, cancel := context.WithCancel(context.Background())
	h := handlers.New(handlers.Deps{
		Store:         s,
		Users:         users.New(s),
		Conversations: conversations.New(s),
		Messaging:     messaging.New(s, proc, cfg.Messaging.MaxLength),
		Presence:      presence.New(s, clock, cfg.Presence.TypingWindow.Duration()),
		AI:            orchestrator,
		Search:        search.New(s, provider, cfg.AI.SearchLimit),
		Hub:           hub,
		Jobs:          proc,
		Retention:     rm,
		PollTimeout:   cfg.Live.PollTimeout.Duration(),
		Base:          base,
		Version:       version,
	})

	return &App{
		eff:        eff,
		version:    version,
		store:      s,
		proc:       proc,
		retention:  rm,
		gateway:    auth.NewGateway(auth.NewSecConfig(cfg.Security), clock),
		handlers:   h,
		ln:         opts.Listener,
		base:       base,
		cancelBase: cancel,
		state:      "initialized",
	}, nil
}

// Run starts the job processor, the retention scheduler and the http
// listener, and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.state = "running"
	a.proc.Start()
	if n, err := a.proc.Recover(); err != nil {
		logger.Warn("job_recover_failed", "error", err)
	} else if n > 0 {
		logger.Info("jobs_recovered", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.retention.Run(gctx) })
	g.Go(func() error { return a.serve(gctx) })
	return g.Wait()
}

func logConfigSummary(eff config.EffectiveConfigResult) {
	c := eff.Config
	logger.LogConfigSummary("config_runtime_summary", []string{
		fmt.Sprintf("ai_provider: %s", c.AI.Provider),
		fmt.Sprintf("jobs_workers: %d", c.Jobs.Workers),
		fmt.Sprintf("jobs_queue_capacity: %s", humanize.Comma(int64(c.Jobs.QueueCapacity))),
		fmt.Sprintf("max_request_body: %s", c.Server.MaxRequestBody),
		fmt.Sprintf("live_poll_timeout: %s", c.Live.PollTimeout.Duration()),
		fmt.Sprintf("retention_enabled: %t", c.Retention.Enabled),
	})
}
