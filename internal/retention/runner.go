package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/store/keys"
)

const maxConsecutiveRenewFails = 3

// Report summarises one run. LeaseHeld is set when another process owned
// the lease and nothing was pruned.
type Report struct {
	RunID     string `json:"run_id"`
	DryRun    bool   `json:"dry_run"`
	LeaseHeld bool   `json:"lease_held,omitempty"`
	Artifacts int    `json:"artifacts"`
	Typing    int    `json:"typing"`
}

func (m *Manager) runOnce(ctx context.Context) (Report, error) {
	rep := Report{RunID: keys.NewID(), DryRun: m.cfg.DryRun}
	ttl := m.cfg.LockTTL.Duration()
	owner := rep.RunID

	acq, err := m.lease.Acquire(owner, ttl)
	if err != nil {
		return rep, fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acq {
		rep.LeaseHeld = true
		return rep, nil
	}
	defer func() {
		if err := m.lease.Release(owner); err != nil {
			logger.Error("retention_lease_release_error", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		m.heartbeat(runCtx, cancel, owner, ttl)
	}()
	// the heartbeat must be gone before the lease is released
	defer func() {
		cancel()
		<-hbDone
	}()

	now := m.clock.Now()
	logger.AuditInfo("retention_audit_header", "run_id", rep.RunID, "started_at", now.Format(time.RFC3339), "dry_run", rep.DryRun, "period", m.cfg.Period)

	artifactCutoff := now.Add(-m.period).UnixNano()
	rep.Artifacts, err = m.prune(runCtx, rep.RunID, "artifact", func(limit int) (int, error) {
		return m.store.PruneSupersededArtifacts(artifactCutoff, limit, m.cfg.DryRun)
	})
	if err != nil {
		return rep, err
	}
	typingCutoff := now.Add(-m.cfg.TypingStaleAfter.Duration()).UnixNano()
	rep.Typing, err = m.prune(runCtx, rep.RunID, "typing", func(limit int) (int, error) {
		return m.store.PruneTyping(typingCutoff, limit, m.cfg.DryRun)
	})
	if err != nil {
		return rep, err
	}

	logger.AuditInfo("retention_audit_footer", "run_id", rep.RunID, "artifacts", rep.Artifacts, "typing", rep.Typing)
	logger.Info("retention_run_complete", "run_id", rep.RunID, "artifacts", rep.Artifacts, "typing", rep.Typing, "dry_run", rep.DryRun)
	return rep, nil
}

// prune calls fn in batches until a short batch. A dry run stops after the
// first batch because nothing is removed between calls.
func (m *Manager) prune(ctx context.Context, runID, family string, fn func(limit int) (int, error)) (int, error) {
	limit := m.cfg.BatchSize
	var total int
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("retention run aborted: %w", err)
		}
		n, err := fn(limit)
		if err != nil {
			logger.AuditInfo("retention_audit_item", "run_id", runID, "family", family, "status", "failed", "error", err.Error())
			return total, fmt.Errorf("prune %s: %w", family, err)
		}
		total += n
		if n > 0 {
			status := "success"
			if m.cfg.DryRun {
				status = "dry_run"
			}
			logger.AuditInfo("retention_audit_item", "run_id", runID, "family", family, "count", n, "status", status)
		}
		if m.cfg.DryRun || n < limit {
			return total, nil
		}
	}
}

// heartbeat renews the lease and cancels the run after repeated failures.
func (m *Manager) heartbeat(ctx context.Context, abort context.CancelFunc, owner string, ttl time.Duration) {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	var fails int
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.lease.Renew(owner, ttl); err != nil {
				fails++
				logger.Error("retention_lease_renew_failed", "error", err, "count", fails)
				if fails >= maxConsecutiveRenewFails {
					abort()
					return
				}
				continue
			}
			fails = 0
		}
	}
}
