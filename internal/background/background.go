// Package background implements the Background Loop Runner (C11): three
// cooperating cancelable tasks (alert-rule evaluator, audit retention,
// pool sweeper), gated by the Singleton Lock so only one process on the
// host runs them at a time. Every process remains a live API server
// whether or not it holds the lock.
package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/kubefleet/internal/audit"
	"github.com/wisbric/kubefleet/pkg/alertrules"
	"github.com/wisbric/kubefleet/pkg/clientpool"
	"github.com/wisbric/kubefleet/pkg/singleton"
)

// Config controls retention sizing, sourced from internal/config.
type Config struct {
	RetentionDays        int
	CleanupIntervalHours int
	CleanupBatchSize     int32
}

func (c Config) withDefaults() Config {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = 24
	}
	if c.CleanupBatchSize <= 0 {
		c.CleanupBatchSize = 5000
	}
	return c
}

// Runner owns the three background loops and the Singleton Lock that
// gates whether this process runs them at all.
type Runner struct {
	lock      *singleton.FileLock
	auditor   *audit.Writer
	evaluator *alertrules.Evaluator
	pool      *clientpool.Pool
	cfg       Config
	logger    *slog.Logger
}

func New(lock *singleton.FileLock, auditor *audit.Writer, evaluator *alertrules.Evaluator, pool *clientpool.Pool, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{lock: lock, auditor: auditor, evaluator: evaluator, pool: pool, cfg: cfg.withDefaults(), logger: logger}
}

// Run attempts to acquire the Singleton Lock; if another process holds
// it, Run returns immediately without starting any loop (the caller is
// still a live API server). If acquired, Run blocks running all three
// loops until ctx is cancelled, then releases the lock.
func (r *Runner) Run(ctx context.Context) {
	acquired, err := r.lock.TryAcquire()
	if err != nil {
		r.logger.Error("acquiring background singleton lock", "error", err)
		return
	}
	if !acquired {
		r.logger.Info("background singleton lock held by another process, skipping background loops")
		return
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			r.logger.Error("releasing background singleton lock", "error", err)
		}
	}()

	r.logger.Info("background loop runner started")

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := r.evaluator.Run(ctx); err != nil {
			r.logger.Error("alert rule evaluator stopped", "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		r.runAuditRetention(ctx)
	}()

	go func() {
		defer wg.Done()
		r.runPoolSweeper(ctx)
	}()

	wg.Wait()
	r.logger.Info("background loop runner stopped")
}

func (r *Runner) runAuditRetention(ctx context.Context) {
	interval := time.Duration(r.cfg.CleanupIntervalHours) * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pruneAuditLogs(ctx)
		}
	}
}

func (r *Runner) pruneAuditLogs(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(r.cfg.RetentionDays) * 24 * time.Hour)
	for {
		deleted, err := r.auditor.Prune(ctx, cutoff, r.cfg.CleanupBatchSize)
		if err != nil {
			r.logger.Error("pruning audit logs", "error", err)
			return
		}
		r.logger.Info("pruned audit logs batch", "deleted", deleted)
		if deleted < int64(r.cfg.CleanupBatchSize) {
			return
		}
	}
}

func (r *Runner) runPoolSweeper(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pool.Sweep()
		}
	}
}
