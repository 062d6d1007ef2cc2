package sched

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"telegram-api-relay/internal/infra/metrics"
	red "telegram-api-relay/internal/infra/redis"
)

const (
	lockKey  = "lock:maintenance"
	lockTTL  = 5 * time.Minute
	runLimit = 2 * time.Minute
)

type QuotaPruner interface {
	Prune(ctx context.Context) (int, error)
}

type EntitlementPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type StateSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type LimiterSweeper interface {
	Sweep(cutoff time.Time) int
}

// MaintenanceWorker bounds the growth of process state: old usage days,
// idle users, expired grants and codes, stale menu choices and idle
// rate-limiter buckets.
type MaintenanceWorker struct {
	schedule string
	quota    QuotaPruner
	ent      EntitlementPurger
	state    StateSweeper
	limiter  LimiterSweeper
	locker   red.Locker
	now      func() time.Time
	log      *zerolog.Logger
}

func NewMaintenanceWorker(
	schedule string,
	quota QuotaPruner,
	ent EntitlementPurger,
	state StateSweeper,
	limiter LimiterSweeper,
	locker red.Locker,
	logger *zerolog.Logger,
) *MaintenanceWorker {
	l := logger.With().Str("component", "MaintenanceWorker").Logger()
	if schedule == "" {
		schedule = "@hourly"
	}
	return &MaintenanceWorker{
		schedule: schedule,
		quota:    quota,
		ent:      ent,
		state:    state,
		limiter:  limiter,
		locker:   locker,
		now:      time.Now,
		log:      &l,
	}
}

// Run schedules RunOnce on the cron schedule and blocks until ctx is done.
func (w *MaintenanceWorker) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(w.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, runLimit)
		defer cancel()
		_ = w.RunOnce(runCtx)
	}); err != nil {
		return err
	}

	w.log.Info().Str("schedule", w.schedule).Msg("Starting maintenance worker")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info().Msg("Stopping maintenance worker")
	return ctx.Err()
}

// RunOnce performs one maintenance pass. Another replica holding the lock is
// not an error. Each step runs even if an earlier one failed; the first
// error is returned.
func (w *MaintenanceWorker) RunOnce(ctx context.Context) error {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, lockKey, lockTTL)
		if errors.Is(err, red.ErrLockHeld) {
			w.log.Debug().Msg("maintenance skipped, lock held elsewhere")
			return nil
		}
		if err != nil {
			metrics.IncMaintenanceRun("failed")
			w.log.Error().Err(err).Msg("maintenance lock")
			return err
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("maintenance unlock")
			}
		}()
	}

	now := w.now()
	var firstErr error
	step := func(store string, n int, err error) {
		if err != nil {
			w.log.Error().Err(err).Str("store", store).Msg("maintenance step failed")
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if n > 0 {
			metrics.AddPruned(store, n)
			w.log.Info().Str("store", store).Int("count", n).Msg("pruned")
		}
	}

	if w.quota != nil {
		n, err := w.quota.Prune(ctx)
		step("usage", n, err)
	}
	if w.ent != nil {
		n, err := w.ent.PurgeExpired(ctx)
		step("entitlement", n, err)
	}
	if w.state != nil {
		n, err := w.state.Sweep(ctx, now)
		step("state", n, err)
	}
	if w.limiter != nil {
		step("ratelimit", w.limiter.Sweep(now.Add(-time.Hour)), nil)
	}

	if firstErr != nil {
		metrics.IncMaintenanceRun("failed")
		return firstErr
	}
	metrics.IncMaintenanceRun("completed")
	return nil
}
