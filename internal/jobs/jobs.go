// Package jobs runs the periodic maintenance passes: freeing seats whose holds
// lapsed and settling refunds the processor has not answered yet. Each pass
// takes a Redis lease first so only one replica runs it at a time.
package jobs

import (
	"context"
	"time"

	"ticketflow/internal/refunds"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/constants"
	"ticketflow/pkg/cache"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	JobExpireReservations = "expire_reservations"
	JobReconcileRefunds   = "reconcile_refunds"
)

type ReservationSweeper interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

type RefundReconciler interface {
	Reconcile(ctx context.Context, olderThan time.Duration, limit int) (*refunds.ReconcileReport, error)
}

// Lease is held for the duration of one pass
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type LeaseFactory func(key string, ttl time.Duration) Lease

// RedisLeases hands out cache.Lock leases on client
func RedisLeases(client *redis.Client) LeaseFactory {
	return func(key string, ttl time.Duration) Lease {
		return cache.NewLock(client, key, ttl)
	}
}

type Runner struct {
	sweeper    ReservationSweeper
	reconciler RefundReconciler
	leases     LeaseFactory
	config     config.JobsConfig
	log        *logger.Logger
}

func NewRunner(sweeper ReservationSweeper, reconciler RefundReconciler, leases LeaseFactory,
	cfg config.JobsConfig, log *logger.Logger) *Runner {
	return &Runner{
		sweeper:    sweeper,
		reconciler: reconciler,
		leases:     leases,
		config:     cfg,
		log:        log.WithComponent("jobs"),
	}
}

// Run blocks until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("background jobs started",
		"sweep_interval", r.config.SweepInterval.String(),
		"reconcile_interval", r.config.ReconcileInterval.String())

	sweep := time.NewTicker(r.config.SweepInterval)
	defer sweep.Stop()
	reconcile := time.NewTicker(r.config.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-sweep.C:
			r.ExpireReservations(ctx)
		case <-reconcile.C:
			r.ReconcileRefunds(ctx)
		case <-ctx.Done():
			r.log.Info("background jobs stopped")
			return nil
		}
	}
}

// ExpireReservations runs one sweep pass. It reports whether this replica ran it.
func (r *Runner) ExpireReservations(ctx context.Context) bool {
	return r.exclusive(ctx, JobExpireReservations, func(ctx context.Context) error {
		expired, err := r.sweeper.ExpireStale(ctx, r.config.SweepBatchSize)
		if expired > 0 {
			r.log.Info("expired stale reservations", "count", expired)
		}
		return err
	})
}

// ReconcileRefunds runs one reconciliation pass. It reports whether this replica ran it.
func (r *Runner) ReconcileRefunds(ctx context.Context) bool {
	return r.exclusive(ctx, JobReconcileRefunds, func(ctx context.Context) error {
		_, err := r.reconciler.Reconcile(ctx, r.config.ReconcileAfter, r.config.ReconcileBatchSize)
		return err
	})
}

func (r *Runner) exclusive(ctx context.Context, job string, pass func(context.Context) error) bool {
	lock := r.leases(constants.JobLockKey(job), r.config.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		metrics.JobRun(job, "lock_error")
		r.log.Warn("job lease unavailable", "job", job, "error", err.Error())
		return false
	}
	if !acquired {
		metrics.JobRun(job, "skipped")
		return false
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("job lease not released", "job", job, "error", err.Error())
		}
	}()

	passCtx, cancel := context.WithTimeout(ctx, r.config.LockTTL)
	defer cancel()

	if err := pass(passCtx); err != nil {
		metrics.JobRun(job, "error")
		r.log.Error("job pass failed", "job", job, "error", err.Error())
		return true
	}
	metrics.JobRun(job, "ok")
	return true
}
