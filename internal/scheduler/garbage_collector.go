package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// SessionLister is the part of the session store the collector needs.
type SessionLister interface {
	List(ctx context.Context) ([]*domain.Record, error)
	Delete(ctx context.Context, name string) error
}

// GarbageCollector removes sessions nobody updated for longer than the TTL
type GarbageCollector struct {
	store    SessionLister
	logger   logger.Logger
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

// NewGarbageCollector creates a new garbage collector. A zero ttl disables it.
func NewGarbageCollector(
	store SessionLister,
	log logger.Logger,
	interval time.Duration,
	ttl time.Duration,
) *GarbageCollector {
	return &GarbageCollector{
		store:    store,
		logger:   log,
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
		cron:     cron.New(),
	}
}

// Enabled reports whether sessions expire at all.
func (gc *GarbageCollector) Enabled() bool {
	return gc.ttl > 0 && gc.interval > 0
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if !gc.Enabled() {
		gc.logger.Debug("session expiry disabled")
		return nil
	}

	// Run immediately on start
	if _, err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	spec := fmt.Sprintf("@every %s", gc.interval)
	if _, err := gc.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := gc.Collect(ctx); err != nil {
			gc.logger.Error("garbage collection failed",
				logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid gc schedule %q: %w", spec, err)
	}
	gc.cron.Start()

	return nil
}

// Stop stops the garbage collector and waits for a running sweep
func (gc *GarbageCollector) Stop() {
	<-gc.cron.Stop().Done()
}

// Collect deletes expired sessions and returns how many went away
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	records, err := gc.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := gc.now()
	deleted := 0
	for _, rec := range records {
		if rec.UpdatedAt.IsZero() {
			continue
		}
		idle := now.Sub(rec.UpdatedAt)
		if idle < gc.ttl {
			continue
		}

		if err := gc.store.Delete(ctx, rec.Name); err != nil {
			gc.logger.Warn("failed to delete expired session",
				logger.String("session", rec.Name),
				logger.Error(err))
			continue
		}

		gc.logger.Info("garbage collected expired session",
			logger.String("session", rec.Name),
			logger.Bool("preview", rec.Preview),
			logger.String("idle_for", idle.String()))
		deleted++
	}

	if deleted > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("sessions_deleted", deleted))
	} else {
		gc.logger.Debug("no sessions to garbage collect")
	}
	return deleted, nil
}
