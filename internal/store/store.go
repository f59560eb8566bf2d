// Package store implements the SQLite-backed local data source. One [DB]
// holds the cache tables for every entity type plus the sync-metadata table;
// each entity type queries through its own generic [Store], created from the
// entity's [model.Schema].
//
// Only this package may open or query the database. All other packages
// receive a [*Store] or [*MetaStore] and call its methods.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/msisync/internal/model"
)

// PageSize is the number of list rows per paginated-query page.
const PageSize = 100

// BatchInsertError reports a failed transactional batch import. The entire
// batch is rolled back; nothing was written.
type BatchInsertError struct {
	Entity string
	Err    error
}

func (e *BatchInsertError) Error() string {
	return fmt.Sprintf("batch import for %s failed: %v", e.Entity, e.Err)
}

func (e *BatchInsertError) Unwrap() error { return e.Err }

// DB is the shared SQLite handle.
type DB struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the cache database:
// ~/.local/share/msisync/cache.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "msisync", "cache.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the metadata
// schema, and configures WAL mode for better concurrent read performance.
// Entity tables are created lazily by [New].
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrateMeta(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying metadata schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close releases the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Store is the SQLite-backed local data source for one entity type.
type Store[M any] struct {
	db     *sql.DB
	schema *model.Schema[M]
	fields map[string]model.Field
	log    *slog.Logger

	selectList string
	latCol     string
	lonCol     string
	keyCol     string
	orderCol   string
}

// New validates the schema, creates the entity's table if needed, and returns
// the store for it.
func New[M any](d *DB, schema *model.Schema[M], logger *slog.Logger) (*Store[M], error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}

	s := &Store[M]{
		db:     d.db,
		schema: schema,
		fields: schema.FieldMap(),
		log:    logger,
	}

	cols := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = f.Column
	}
	s.selectList = strings.Join(cols, ", ")

	keyField, _ := schema.Field(schema.NaturalKeyField)
	s.keyCol = keyField.Column
	orderField, _ := schema.Field(schema.OrderingField)
	s.orderCol = orderField.Column
	if schema.LatField != "" {
		latField, _ := schema.Field(schema.LatField)
		lonField, _ := schema.Field(schema.LonField)
		s.latCol = latField.Column
		s.lonCol = lonField.Column
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("creating table %q: %w", schema.Table, err)
	}
	return s, nil
}

// migrate creates the entity table idempotently from the schema's fields.
func (s *Store[M]) migrate() error {
	var defs []string
	for _, f := range s.schema.Fields {
		def := f.Column + " " + columnAffinity(f.Type)
		if f.Key == s.schema.NaturalKeyField {
			def += " NOT NULL PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.schema.Table, strings.Join(defs, ", "))
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_order ON %s (%s)",
		s.schema.Table, s.schema.Table, s.orderCol)
	_, err := s.db.Exec(idx)
	return err
}

// Get returns the record with the given natural key, or (nil, nil) if no such
// record exists.
func (s *Store[M]) Get(ctx context.Context, naturalKey any) (*M, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", s.selectList, s.schema.Table, s.keyCol)
	row := s.db.QueryRowContext(ctx, q, driverValue(s.fields[s.schema.NaturalKeyField], naturalKey))
	return s.scanRecord(row)
}

// GetNewest returns the record with the maximum ordering-field value, used to
// anchor the incremental fetch window. Returns (nil, nil) on an empty store.
func (s *Store[M]) GetNewest(ctx context.Context) (*M, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT 1",
		s.selectList, s.schema.Table, s.orderCol)
	row := s.db.QueryRowContext(ctx, q)
	return s.scanRecord(row)
}

// Count returns the cardinality of the filtered set.
func (s *Store[M]) Count(ctx context.Context, filters []model.FilterParameter) (int, error) {
	where, args, err := model.CompileFilters(s.fields, s.latCol, s.lonCol, filters, time.Now())
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.schema.Table)
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.schema.Key, err)
	}
	return n, nil
}

// GetInBounds returns records matching the user filters AND a bounding box.
// Used by the map layer.
func (s *Store[M]) GetInBounds(ctx context.Context, filters []model.FilterParameter, minLat, maxLat, minLon, maxLon float64) ([]M, error) {
	if s.latCol == "" {
		return nil, fmt.Errorf("bounds query on %s: %w", s.schema.Key, model.ErrNoGeometry)
	}

	where, args, err := model.CompileFilters(s.fields, s.latCol, s.lonCol, filters, time.Now())
	if err != nil {
		return nil, err
	}
	boxClause := fmt.Sprintf("(%s BETWEEN ? AND ? AND %s BETWEEN ? AND ?)", s.latCol, s.lonCol)
	if where != "" {
		where += " AND " + boxClause
	} else {
		where = boxClause
	}
	args = append(args, minLat, maxLat, minLon, maxLon)

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", s.selectList, s.schema.Table, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("bounds query for %s: %w", s.schema.Key, err)
	}
	defer func() { _ = rows.Close() }()

	var records []M
	for rows.Next() {
		rec, err := s.scanValues(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, s.schema.FromValues(rec))
	}
	return records, rows.Err()
}

// PageResult is one page of a paginated query.
type PageResult[M any] struct {
	// Items interleaves section headers with list rows.
	Items []model.Item[M]

	// NextPage is the cursor for the following page.
	NextPage int

	// LastSectionHeader is the running section value after this page, fed
	// back as priorSectionHeader on the next call so a section spanning a
	// page boundary is not announced twice.
	LastSectionHeader string
}

// PaginatedQuery executes filters and sort, slices the page, and interleaves
// section headers wherever the formatted section-key value changes from the
// running priorSectionHeader. Headers are only emitted when the first sort
// parameter is marked as the section key. An exhausted page has no items.
func (s *Store[M]) PaginatedQuery(ctx context.Context, filters []model.FilterParameter, sorts []model.SortParameter, page int, priorSectionHeader string) (PageResult[M], error) {
	res := PageResult[M]{NextPage: page + 1, LastSectionHeader: priorSectionHeader}

	if len(sorts) == 0 {
		sorts = s.schema.DefaultSort
	}

	where, args, err := model.CompileFilters(s.fields, s.latCol, s.lonCol, filters, time.Now())
	if err != nil {
		return res, err
	}
	order, err := model.CompileSort(s.fields, sorts, s.keyCol)
	if err != nil {
		return res, err
	}

	q := fmt.Sprintf("SELECT %s FROM %s", s.selectList, s.schema.Table)
	if where != "" {
		q += " WHERE " + where
	}
	q += fmt.Sprintf(" ORDER BY %s LIMIT %d OFFSET %d", order, PageSize, page*PageSize)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return res, fmt.Errorf("paginated query for %s: %w", s.schema.Key, err)
	}
	defer func() { _ = rows.Close() }()

	var sectionField model.Field
	sectioned := len(sorts) > 0 && sorts[0].Section
	if sectioned {
		sectionField = s.fields[sorts[0].Property.Key]
	}

	for rows.Next() {
		values, err := s.scanValues(rows)
		if err != nil {
			return res, err
		}
		rec := s.schema.FromValues(values)

		if sectioned {
			header := s.schema.SectionString(sectionField, values[sectionField.Key])
			if header != res.LastSectionHeader {
				res.Items = append(res.Items, model.SectionHeader[M](s.schema.HeaderKind(), header))
				res.LastSectionHeader = header
			}
		}
		res.Items = append(res.Items, model.ListItem(rec, s.schema.Summary(rec)))
	}
	return res, rows.Err()
}

// BatchImport upserts all records by natural key inside one transaction.
// Records whose key already exists with identical field values are no-ops.
// Returns the count of rows actually inserted (not updated). A write failure
// rolls the whole batch back and returns a [*BatchInsertError].
func (s *Store[M]) BatchImport(ctx context.Context, records []M) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &BatchInsertError{Entity: s.schema.Key, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.importTx(ctx, tx, records)
	if err != nil {
		return 0, &BatchInsertError{Entity: s.schema.Key, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &BatchInsertError{Entity: s.schema.Key, Err: err}
	}
	return inserted, nil
}

func (s *Store[M]) importTx(ctx context.Context, tx *sql.Tx, records []M) (int, error) {
	selectQ := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", s.selectList, s.schema.Table, s.keyCol)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.schema.Fields)), ", ")
	insertQ := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.schema.Table, s.selectList, placeholders)

	var sets []string
	for _, f := range s.schema.Fields {
		if f.Key == s.schema.NaturalKeyField {
			continue
		}
		sets = append(sets, f.Column+" = ?")
	}
	updateQ := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", s.schema.Table, strings.Join(sets, ", "), s.keyCol)

	inserted := 0
	for _, rec := range records {
		values := s.schema.Values(rec)
		key := driverValue(s.fields[s.schema.NaturalKeyField], values[s.schema.NaturalKeyField])

		existing, err := s.scanRecordValuesTx(ctx, tx, selectQ, key)
		if err != nil {
			return 0, err
		}

		if existing == nil {
			args := make([]any, 0, len(s.schema.Fields))
			for _, f := range s.schema.Fields {
				args = append(args, driverValue(f, values[f.Key]))
			}
			if _, err := tx.ExecContext(ctx, insertQ, args...); err != nil {
				return 0, fmt.Errorf("inserting %s %v: %w", s.schema.Key, values[s.schema.NaturalKeyField], err)
			}
			inserted++
			continue
		}

		if s.sameValues(existing, values) {
			continue // identical record, no-op
		}

		args := make([]any, 0, len(s.schema.Fields))
		for _, f := range s.schema.Fields {
			if f.Key == s.schema.NaturalKeyField {
				continue
			}
			args = append(args, driverValue(f, values[f.Key]))
		}
		args = append(args, key)
		if _, err := tx.ExecContext(ctx, updateQ, args...); err != nil {
			return 0, fmt.Errorf("updating %s %v: %w", s.schema.Key, values[s.schema.NaturalKeyField], err)
		}
	}
	return inserted, nil
}

// sameValues compares a stored field map against an incoming one through the
// storage representation, so e.g. a time.Time equals its stored string.
func (s *Store[M]) sameValues(stored, incoming map[string]any) bool {
	for _, f := range s.schema.Fields {
		if driverValue(f, stored[f.Key]) != driverValue(f, incoming[f.Key]) {
			return false
		}
	}
	return true
}

// --- row scanning ------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so the scan helpers can be
// shared.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a single-row query into a record, mapping sql.ErrNoRows to
// the (nil, nil) miss sentinel.
func (s *Store[M]) scanRecord(row scanner) (*M, error) {
	values, err := s.scanValuesErr(row)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, err
	}
	rec := s.schema.FromValues(values)
	return &rec, nil
}

func (s *Store[M]) scanRecordValuesTx(ctx context.Context, tx *sql.Tx, q string, key any) (map[string]any, error) {
	values, err := s.scanValuesErr(tx.QueryRowContext(ctx, q, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return values, err
}

// scanValues scans one row of the full column list into a field-key map.
func (s *Store[M]) scanValues(row scanner) (map[string]any, error) {
	return s.scanValuesErr(row)
}

func (s *Store[M]) scanValuesErr(row scanner) (map[string]any, error) {
	dests := make([]any, len(s.schema.Fields))
	for i, f := range s.schema.Fields {
		switch columnAffinity(f.Type) {
		case "INTEGER":
			dests[i] = new(sql.NullInt64)
		case "REAL":
			dests[i] = new(sql.NullFloat64)
		default:
			dests[i] = new(sql.NullString)
		}
	}
	if err := row.Scan(dests...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning %s row: %w", s.schema.Key, err)
	}

	values := make(map[string]any, len(s.schema.Fields))
	for i, f := range s.schema.Fields {
		v, err := loadValue(f, dests[i])
		if err != nil {
			return nil, fmt.Errorf("decoding %s column %q: %w", s.schema.Key, f.Column, err)
		}
		values[f.Key] = v
	}
	return values, nil
}

// --- value conversion --------------------------------------------------------

// columnAffinity maps a semantic type to its SQLite column type.
func columnAffinity(t model.SemanticType) string {
	switch t {
	case model.TypeInt, model.TypeBoolean:
		return "INTEGER"
	case model.TypeFloat, model.TypeDouble, model.TypeLatitude, model.TypeLongitude:
		return "REAL"
	default:
		return "TEXT"
	}
}

// driverValue converts a schema value to its storage representation.
// nil stays nil (SQL NULL).
func driverValue(f model.Field, v any) any {
	if v == nil {
		return nil
	}
	switch f.Type {
	case model.TypeDate:
		if t, ok := v.(time.Time); ok {
			return model.StoreTime(t)
		}
	case model.TypeBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	}
	return v
}

// loadValue converts a scanned column back to its schema value type.
func loadValue(f model.Field, dest any) (any, error) {
	switch d := dest.(type) {
	case *sql.NullInt64:
		if !d.Valid {
			return nil, nil
		}
		if f.Type == model.TypeBoolean {
			return d.Int64 != 0, nil
		}
		return d.Int64, nil
	case *sql.NullFloat64:
		if !d.Valid {
			return nil, nil
		}
		return d.Float64, nil
	case *sql.NullString:
		if !d.Valid {
			return nil, nil
		}
		if f.Type == model.TypeDate {
			t, err := model.ParseStoreTime(d.String)
			if err != nil {
				return nil, err
			}
			if t.IsZero() {
				return nil, nil
			}
			return t, nil
		}
		return d.String, nil
	}
	return nil, fmt.Errorf("unsupported scan destination %T", dest)
}
