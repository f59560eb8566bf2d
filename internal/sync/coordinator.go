// Package sync implements the whole-app sync coordinator. It iterates every
// entity repository, rate-limits full refresh passes to one per debounce
// window, and runs the daemon polling loop. Entity types refresh concurrently
// with respect to each other; each repository serialises its own work.
package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/msisync/internal/store"
)

const (
	otelScope       = "msisync/sync"
	spanRefreshAll  = "sync.refresh_all"
	metricInserted  = "msisync.sync.records.inserted"
	metricErrors    = "msisync.sync.errors"
	metricPasses    = "msisync.sync.passes"
	metricDebounced = "msisync.sync.debounced"
)

// DefaultDebounce is the minimum interval between whole-app refresh passes.
const DefaultDebounce = 5 * time.Minute

// Syncer is the per-entity refresh surface the coordinator drives.
// Implemented by [repo.Repository].
type Syncer interface {
	EntityKey() string
	Enabled(ctx context.Context) (bool, error)
	Refresh(ctx context.Context, force bool) (inserted int, err error)
}

// MetaStore is the metadata surface used for the app-wide gate.
// Implemented by [store.MetaStore].
type MetaStore interface {
	Get(ctx context.Context, entityKey string) (store.Meta, error)
	RecordSync(ctx context.Context, entityKey string, at time.Time) error
}

// Stats aggregates one refresh pass.
type Stats struct {
	Refreshed int // entity types refreshed
	Inserted  int // records inserted across all types
	Skipped   int // entity types disabled
	Errors    int // entity types whose refresh failed
}

// Coordinator drives all repositories. Create one with [NewCoordinator] and
// run it with [Coordinator.Run] or a single [Coordinator.RefreshAll].
type Coordinator struct {
	syncers      []Syncer
	meta         MetaStore
	pollInterval time.Duration
	debounce     time.Duration
	log          *slog.Logger
	now          func() time.Time

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntInserted  metric.Int64Counter
	cntErrors    metric.Int64Counter
	cntPasses    metric.Int64Counter
	cntDebounced metric.Int64Counter
}

// NewCoordinator creates a Coordinator over the given repositories.
func NewCoordinator(syncers []Syncer, meta MetaStore, pollInterval time.Duration, logger *slog.Logger) *Coordinator {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Coordinator{
		syncers:      syncers,
		meta:         meta,
		pollInterval: pollInterval,
		debounce:     DefaultDebounce,
		log:          logger,
		now:          time.Now,

		tracer:       tracer,
		cntInserted:  mustCounter(metricInserted, "Number of records inserted during sync"),
		cntErrors:    mustCounter(metricErrors, "Number of entity refresh failures during sync"),
		cntPasses:    mustCounter(metricPasses, "Number of full refresh passes"),
		cntDebounced: mustCounter(metricDebounced, "Number of refresh passes skipped by the app-wide debounce"),
	}
}

// SetDebounce overrides the default app-wide debounce window.
func (c *Coordinator) SetDebounce(d time.Duration) { c.debounce = d }

// RefreshAll runs one full refresh pass across every enabled entity type,
// gated by the persisted app-wide debounce timestamp unless force is set.
// Individual entity failures are counted, logged, and do not stop the pass;
// the first error is returned after all types have settled.
func (c *Coordinator) RefreshAll(ctx context.Context, force bool) (Stats, error) {
	gate, err := c.meta.Get(ctx, store.AppKey)
	if err != nil {
		return Stats{}, err
	}
	if !force && c.now().Sub(gate.LastSyncAt) < c.debounce {
		c.cntDebounced.Add(ctx, 1)
		c.log.Debug("refresh pass debounced", "last_pass", gate.LastSyncAt)
		return Stats{}, nil
	}

	ctx, span := c.tracer.Start(ctx, spanRefreshAll)
	defer span.End()

	var (
		mu       sync.Mutex
		stats    Stats
		firstErr error
		wg       sync.WaitGroup
	)

	for _, s := range c.syncers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			enabled, err := s.Enabled(ctx)
			if err == nil && !enabled {
				mu.Lock()
				stats.Skipped++
				mu.Unlock()
				return
			}

			inserted, err := s.Refresh(ctx, force)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.log.Error("entity refresh failed", "entity", s.EntityKey(), "error", err)
				stats.Errors++
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			stats.Refreshed++
			stats.Inserted += inserted
		}()
	}
	wg.Wait()

	if err := c.meta.RecordSync(ctx, store.AppKey, c.now().UTC()); err != nil {
		c.log.Error("recording app-wide sync timestamp", "error", err)
	}

	c.cntPasses.Add(ctx, 1)
	if stats.Inserted > 0 {
		c.cntInserted.Add(ctx, int64(stats.Inserted))
	}
	if stats.Errors > 0 {
		c.cntErrors.Add(ctx, int64(stats.Errors))
	}
	span.SetAttributes(
		attribute.Int("sync.refreshed", stats.Refreshed),
		attribute.Int("sync.inserted", stats.Inserted),
		attribute.Int("sync.skipped", stats.Skipped),
		attribute.Int("sync.errors", stats.Errors),
	)
	if firstErr != nil {
		span.RecordError(firstErr)
	}

	c.log.Info("refresh pass complete",
		"refreshed", stats.Refreshed,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)
	return stats, firstErr
}

// Run starts the polling loop with an immediate first pass. It blocks until
// ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	if _, err := c.RefreshAll(ctx, false); err != nil {
		c.log.Error("initial refresh pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Info("sync coordinator shutting down")
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.RefreshAll(ctx, false); err != nil {
				c.log.Error("refresh pass failed", "error", err)
			}
		}
	}
}
