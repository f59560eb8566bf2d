// Package repo implements the per-entity repository: the orchestrator that
// decides whether a refresh is due, computes the incremental fetch window
// from the newest cached record, imports the fetched batch, and raises the
// Loading/Loaded/Updated lifecycle events. Query methods delegate to the
// local store untouched — the repository adds sync orchestration and nothing
// else.
package repo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/njoerd114/msisync/internal/event"
	"github.com/njoerd114/msisync/internal/model"
	"github.com/njoerd114/msisync/internal/remote"
	"github.com/njoerd114/msisync/internal/store"
)

// DefaultSyncInterval is the per-entity refresh debounce window.
const DefaultSyncInterval = 5 * time.Minute

// Local is the local data source contract. Implemented by [store.Store].
type Local[M any] interface {
	Get(ctx context.Context, naturalKey any) (*M, error)
	GetNewest(ctx context.Context) (*M, error)
	GetInBounds(ctx context.Context, filters []model.FilterParameter, minLat, maxLat, minLon, maxLon float64) ([]M, error)
	Count(ctx context.Context, filters []model.FilterParameter) (int, error)
	PaginatedQuery(ctx context.Context, filters []model.FilterParameter, sorts []model.SortParameter, page int, priorSectionHeader string) (store.PageResult[M], error)
	BatchImport(ctx context.Context, records []M) (int, error)
}

// Remote is the remote data source contract. Implemented by [remote.Client].
type Remote[M any] interface {
	Fetch(ctx context.Context, newest *M) (remote.Result[M], error)
}

// MetaStore is the sync-metadata contract. Implemented by [store.MetaStore].
type MetaStore interface {
	Get(ctx context.Context, entityKey string) (store.Meta, error)
	RecordSync(ctx context.Context, entityKey string, at time.Time) error
}

// Repository pairs one entity type's local and remote data sources.
type Repository[M any] struct {
	schema *model.Schema[M]
	local  Local[M]
	remote Remote[M]
	meta   MetaStore
	bus    *event.Bus
	log    *slog.Logger

	syncInterval time.Duration
	now          func() time.Time

	// mu serialises refreshes so a later call cannot start while an
	// in-flight batch import is still committing.
	mu sync.Mutex
}

// New wires a repository. The bus may be shared across repositories; events
// carry the entity key.
func New[M any](schema *model.Schema[M], local Local[M], rem Remote[M], meta MetaStore, bus *event.Bus, logger *slog.Logger) *Repository[M] {
	return &Repository[M]{
		schema:       schema,
		local:        local,
		remote:       rem,
		meta:         meta,
		bus:          bus,
		log:          logger,
		syncInterval: DefaultSyncInterval,
		now:          time.Now,
	}
}

// EntityKey returns the repository's entity key.
func (r *Repository[M]) EntityKey() string { return r.schema.Key }

// SetSyncInterval overrides the default refresh debounce window.
func (r *Repository[M]) SetSyncInterval(d time.Duration) { r.syncInterval = d }

// LastSync returns the entity's last successful sync time (zero if never).
func (r *Repository[M]) LastSync(ctx context.Context) (time.Time, error) {
	meta, err := r.meta.Get(ctx, r.schema.Key)
	if err != nil {
		return time.Time{}, err
	}
	return meta.LastSyncAt, nil
}

// Enabled reports whether syncing is switched on for this entity.
func (r *Repository[M]) Enabled(ctx context.Context) (bool, error) {
	meta, err := r.meta.Get(ctx, r.schema.Key)
	if err != nil {
		return false, err
	}
	return meta.Enabled, nil
}

// Refresh synchronises the entity with the remote API and returns the number
// of newly inserted records. Without force, a refresh inside the debounce
// window is a no-op serving cached data. Loading always precedes Loaded;
// Loaded fires on every non-debounced exit path; Updated follows Loaded only
// when records were inserted.
func (r *Repository[M]) Refresh(ctx context.Context, force bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := r.meta.Get(ctx, r.schema.Key)
	if err != nil {
		return 0, fmt.Errorf("reading sync metadata for %s: %w", r.schema.Key, err)
	}
	if !force && r.now().Sub(meta.LastSyncAt) < r.syncInterval {
		r.log.Debug("refresh debounced", "entity", r.schema.Key, "last_sync", meta.LastSyncAt)
		return 0, nil
	}

	r.bus.Publish(event.Event{Kind: event.Loading, EntityKey: r.schema.Key})
	inserted, err := r.doRefresh(ctx)
	r.bus.Publish(event.Event{Kind: event.Loaded, EntityKey: r.schema.Key})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		r.bus.Publish(event.Event{Kind: event.Updated, EntityKey: r.schema.Key, Inserted: inserted})
	}
	return inserted, nil
}

func (r *Repository[M]) doRefresh(ctx context.Context) (int, error) {
	newest, err := r.local.GetNewest(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading newest cached %s: %w", r.schema.Key, err)
	}

	res, err := r.remote.Fetch(ctx, newest)
	if err != nil {
		return 0, err
	}

	inserted, err := r.local.BatchImport(ctx, res.Records)
	if err != nil {
		return 0, err
	}

	// Count mismatch: the remote declared more records than arrived. One
	// bounded requery anchored at the last record received; a second
	// discrepancy is accepted and logged, never retried again.
	received := len(res.Records) + res.Dropped
	if received < res.DeclaredTotal {
		r.log.Info("count mismatch, requerying once",
			"entity", r.schema.Key,
			"received", received,
			"declared", res.DeclaredTotal,
		)

		anchor := newest
		if n := len(res.Records); n > 0 {
			anchor = &res.Records[n-1]
		}

		again, err := r.remote.Fetch(ctx, anchor)
		if err != nil {
			// The first batch is already committed; keep it and clear the
			// loading state rather than failing the whole refresh.
			r.log.Warn("requery failed, accepting partial window", "entity", r.schema.Key, "error", err)
		} else {
			more, err := r.local.BatchImport(ctx, again.Records)
			if err != nil {
				return 0, err
			}
			inserted += more
			if len(again.Records)+again.Dropped < again.DeclaredTotal {
				r.log.Warn("count mismatch persists after requery, accepting",
					"entity", r.schema.Key,
					"received", len(again.Records)+again.Dropped,
					"declared", again.DeclaredTotal,
				)
			}
		}
	}

	if err := r.meta.RecordSync(ctx, r.schema.Key, r.now().UTC()); err != nil {
		return 0, fmt.Errorf("recording sync for %s: %w", r.schema.Key, err)
	}

	r.log.Info("refresh complete", "entity", r.schema.Key, "inserted", inserted)
	return inserted, nil
}

// --- query delegation --------------------------------------------------------

// Get returns the cached record with the given natural key.
func (r *Repository[M]) Get(ctx context.Context, naturalKey any) (*M, error) {
	return r.local.Get(ctx, naturalKey)
}

// Count returns the cardinality of the filtered cache.
func (r *Repository[M]) Count(ctx context.Context, filters []model.FilterParameter) (int, error) {
	return r.local.Count(ctx, filters)
}

// GetInBounds returns cached records inside a bounding box.
func (r *Repository[M]) GetInBounds(ctx context.Context, filters []model.FilterParameter, minLat, maxLat, minLon, maxLon float64) ([]M, error) {
	return r.local.GetInBounds(ctx, filters, minLat, maxLat, minLon, maxLon)
}

// PaginatedQuery returns one page of filtered, sorted, section-annotated
// items.
func (r *Repository[M]) PaginatedQuery(ctx context.Context, filters []model.FilterParameter, sorts []model.SortParameter, page int, priorSectionHeader string) (store.PageResult[M], error) {
	return r.local.PaginatedQuery(ctx, filters, sorts, page, priorSectionHeader)
}
