// Package retention prunes superseded AI artifacts and stale typing rows on
// a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/timeutil"
)

// ErrRunInProgress is returned by RunNow while another run is active in
// this process.
var ErrRunInProgress = errors.New("retention run already in progress")

type Store interface {
	PruneSupersededArtifacts(cutoff int64, limit int, dryRun bool) (int, error)
	PruneTyping(cutoff int64, limit int, dryRun bool) (int, error)
}

type Manager struct {
	store  Store
	cfg    config.RetentionConfig
	period time.Duration
	clock  timeutil.Clock
	lease  *fileLease

	mu      sync.Mutex
	running bool
}

// New builds a manager keeping its lease file in stateDir.
func New(s Store, cfg config.RetentionConfig, stateDir string, clock timeutil.Clock) (*Manager, error) {
	period, err := config.ParsePeriod(cfg.Period)
	if err != nil {
		return nil, fmt.Errorf("retention period: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = config.Duration(5 * time.Minute)
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create retention state dir: %w", err)
	}
	clock = timeutil.Or(clock)
	return &Manager{
		store:  s,
		cfg:    cfg,
		period: period,
		clock:  clock,
		lease:  newFileLease(stateDir, clock),
	}, nil
}

// Run schedules runs on the configured cron until ctx ends. It returns
// immediately when retention is disabled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.cfg.Enabled {
		logger.Info("retention_disabled")
		return nil
	}
	logger.Info("retention_enabled", "cron", m.cfg.Cron, "period", m.cfg.Period, "dry_run", m.cfg.DryRun)
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.clock.Now(), false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			next = m.clock.Now().Add(30 * time.Second)
		}
		wait := next.Sub(m.clock.Now())
		if wait < time.Second {
			wait = time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if _, err := m.RunNow(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			logger.Error("retention_run_error", "error", err)
		}
	}
}

// RunNow performs one run immediately, outside the schedule.
func (m *Manager) RunNow(ctx context.Context) (Report, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Report{}, ErrRunInProgress
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	return m.runOnce(ctx)
}
