package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// AppKey is the reserved metadata key for the whole-app refresh gate.
const AppKey = "_all"

const metaSchema = `
CREATE TABLE IF NOT EXISTS sync_status (
    entity_key     TEXT    NOT NULL PRIMARY KEY,
    last_sync_at   TEXT    NOT NULL DEFAULT '',
    enabled        INTEGER NOT NULL DEFAULT 1,
    initial_loaded INTEGER NOT NULL DEFAULT 0
);
`

// Meta is the per-entity sync metadata row. A missing row reads as the zero
// sync time with the entity enabled.
type Meta struct {
	EntityKey         string
	LastSyncAt        time.Time
	Enabled           bool
	InitialDataLoaded bool
}

// MetaStore persists sync metadata in the shared database. The repository
// owns writes; the coordinator and the status command read.
type MetaStore struct {
	db *sql.DB
}

// NewMetaStore returns the metadata store over the shared database.
func NewMetaStore(d *DB) *MetaStore {
	return &MetaStore{db: d.db}
}

// migrateMeta applies the metadata DDL idempotently.
func migrateMeta(db *sql.DB) error {
	_, err := db.Exec(metaSchema)
	return err
}

// Get returns the metadata for an entity key. Missing rows return a default
// Meta (never synced, enabled).
func (m *MetaStore) Get(ctx context.Context, entityKey string) (Meta, error) {
	const q = `SELECT entity_key, last_sync_at, enabled, initial_loaded FROM sync_status WHERE entity_key = ?`
	meta, err := scanMeta(m.db.QueryRowContext(ctx, q, entityKey))
	if err == sql.ErrNoRows {
		return Meta{EntityKey: entityKey, Enabled: true}, nil
	}
	if err != nil {
		return Meta{}, fmt.Errorf("reading sync status for %q: %w", entityKey, err)
	}
	return meta, nil
}

// All returns every recorded metadata row, excluding the app-wide gate.
func (m *MetaStore) All(ctx context.Context) ([]Meta, error) {
	const q = `SELECT entity_key, last_sync_at, enabled, initial_loaded FROM sync_status WHERE entity_key != ? ORDER BY entity_key`
	rows, err := m.db.QueryContext(ctx, q, AppKey)
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var metas []Meta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync status: %w", err)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// RecordSync stores a successful sync: updates the timestamp and marks the
// initial load done, preserving the enabled flag.
func (m *MetaStore) RecordSync(ctx context.Context, entityKey string, at time.Time) error {
	const q = `
		INSERT INTO sync_status (entity_key, last_sync_at, initial_loaded)
		VALUES (?, ?, 1)
		ON CONFLICT(entity_key) DO UPDATE SET
		    last_sync_at   = excluded.last_sync_at,
		    initial_loaded = 1`
	if _, err := m.db.ExecContext(ctx, q, entityKey, model.StoreTime(at)); err != nil {
		return fmt.Errorf("recording sync for %q: %w", entityKey, err)
	}
	return nil
}

// SetEnabled flips the per-entity sync switch.
func (m *MetaStore) SetEnabled(ctx context.Context, entityKey string, enabled bool) error {
	n := 0
	if enabled {
		n = 1
	}
	const q = `
		INSERT INTO sync_status (entity_key, enabled) VALUES (?, ?)
		ON CONFLICT(entity_key) DO UPDATE SET enabled = excluded.enabled`
	if _, err := m.db.ExecContext(ctx, q, entityKey, n); err != nil {
		return fmt.Errorf("setting enabled for %q: %w", entityKey, err)
	}
	return nil
}

func scanMeta(row scanner) (Meta, error) {
	var meta Meta
	var lastSync string
	var enabled, initial int
	if err := row.Scan(&meta.EntityKey, &lastSync, &enabled, &initial); err != nil {
		return Meta{}, err
	}
	meta.LastSyncAt, _ = model.ParseStoreTime(lastSync)
	meta.Enabled = enabled != 0
	meta.InitialDataLoaded = initial != 0
	return meta, nil
}
