package repo

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/njoerd114/msisync/internal/model"
	"github.com/njoerd114/msisync/internal/remote"
	"github.com/njoerd114/msisync/internal/store"
)

// beacon is a minimal entity for repository tests.
type beacon struct {
	Number int64
	Name   string
}

func beaconSchema() *model.Schema[beacon] {
	return &model.Schema[beacon]{
		Key:      "radiobeacon",
		Name:     "Radiobeacon",
		Table:    "radiobeacons",
		ArrayKey: "radiobeacon",
		Fields: []model.Field{
			{Key: "number", Column: "number", Type: model.TypeInt},
			{Key: "name", Column: "name", Type: model.TypeString},
		},
		NaturalKeyField: "number",
		OrderingField:   "number",
		Decode:          func(data []byte) (beacon, error) { return beacon{}, nil },
		Valid:           func(b beacon) bool { return b.Number != 0 },
		Values: func(b beacon) map[string]any {
			return map[string]any{"number": b.Number, "name": b.Name}
		},
		FromValues: func(v map[string]any) beacon { return beacon{} },
		Summary:    func(b beacon) string { return b.Name },
		SinceParams: func(newest *beacon, now time.Time) url.Values {
			return url.Values{}
		},
	}
}

// --- Mock local data source --------------------------------------------------

type mockLocal struct {
	mu      sync.Mutex
	records map[int64]beacon
	imports [][]beacon

	importErr error
}

func newMockLocal() *mockLocal {
	return &mockLocal{records: make(map[int64]beacon)}
}

func (m *mockLocal) Get(_ context.Context, naturalKey any) (*beacon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, _ := naturalKey.(int64)
	if b, ok := m.records[key]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *mockLocal) GetNewest(_ context.Context) (*beacon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *beacon
	for _, b := range m.records {
		b := b
		if newest == nil || b.Number > newest.Number {
			newest = &b
		}
	}
	return newest, nil
}

func (m *mockLocal) GetInBounds(_ context.Context, _ []model.FilterParameter, _, _, _, _ float64) ([]beacon, error) {
	return nil, nil
}

func (m *mockLocal) Count(_ context.Context, _ []model.FilterParameter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *mockLocal) PaginatedQuery(_ context.Context, _ []model.FilterParameter, _ []model.SortParameter, page int, prior string) (store.PageResult[beacon], error) {
	return store.PageResult[beacon]{NextPage: page + 1, LastSectionHeader: prior}, nil
}

func (m *mockLocal) BatchImport(_ context.Context, records []beacon) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.importErr != nil {
		return 0, m.importErr
	}
	m.imports = append(m.imports, records)
	inserted := 0
	for _, b := range records {
		if _, ok := m.records[b.Number]; !ok {
			inserted++
		}
		m.records[b.Number] = b
	}
	return inserted, nil
}

// --- Mock remote data source -------------------------------------------------

type mockRemote struct {
	mu      sync.Mutex
	results []remote.Result[beacon] // consumed per fetch; last one repeats
	err     error
	fetches int
	anchors []*beacon
}

func (m *mockRemote) Fetch(_ context.Context, newest *beacon) (remote.Result[beacon], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	m.anchors = append(m.anchors, newest)
	if m.err != nil {
		return remote.Result[beacon]{}, m.err
	}
	if len(m.results) == 0 {
		return remote.Result[beacon]{}, nil
	}
	res := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return res, nil
}

// --- Mock metadata store -----------------------------------------------------

type mockMeta struct {
	mu    sync.Mutex
	metas map[string]store.Meta
}

func newMockMeta() *mockMeta {
	return &mockMeta{metas: make(map[string]store.Meta)}
}

func (m *mockMeta) Get(_ context.Context, entityKey string) (store.Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta, ok := m.metas[entityKey]; ok {
		return meta, nil
	}
	return store.Meta{EntityKey: entityKey, Enabled: true}, nil
}

func (m *mockMeta) RecordSync(_ context.Context, entityKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := m.metas[entityKey]
	meta.EntityKey = entityKey
	meta.LastSyncAt = at
	meta.Enabled = true
	meta.InitialDataLoaded = true
	m.metas[entityKey] = meta
	return nil
}
