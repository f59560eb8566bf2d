package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// report is a minimal hazard-report entity exercising the generic store.
type report struct {
	Reference string
	Date      time.Time
	Latitude  float64
	Longitude float64
	Hostility string
}

var (
	reportDateProp = model.Property{Name: "Date", Key: "date", Type: model.TypeDate}
	reportHostProp = model.Property{Name: "Hostility", Key: "hostility", Type: model.TypeString}
)

func reportSchema() *model.Schema[report] {
	return &model.Schema[report]{
		Key:      "report",
		Name:     "Hazard Report",
		Table:    "reports",
		ArrayKey: "reports",
		Fields: []model.Field{
			{Key: "reference", Column: "reference", Type: model.TypeString},
			{Key: "date", Column: "date", Type: model.TypeDate},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
			{Key: "hostility", Column: "hostility", Type: model.TypeString},
		},
		NaturalKeyField: "reference",
		OrderingField:   "date",
		LatField:        "latitude",
		LonField:        "longitude",
		DefaultSort: []model.SortParameter{
			{Property: reportDateProp, Ascending: false, Section: true},
		},
		Decode: func(data []byte) (report, error) { return report{}, nil },
		Valid:  func(r report) bool { return r.Reference != "" },
		Values: func(r report) map[string]any {
			var date any
			if !r.Date.IsZero() {
				date = r.Date
			}
			return map[string]any{
				"reference": r.Reference,
				"date":      date,
				"latitude":  r.Latitude,
				"longitude": r.Longitude,
				"hostility": r.Hostility,
			}
		},
		FromValues: func(v map[string]any) report {
			r := report{}
			r.Reference, _ = v["reference"].(string)
			r.Date, _ = v["date"].(time.Time)
			r.Latitude, _ = v["latitude"].(float64)
			r.Longitude, _ = v["longitude"].(float64)
			r.Hostility, _ = v["hostility"].(string)
			return r
		},
		Summary: func(r report) string { return r.Reference + " " + r.Hostility },
		SinceParams: func(newest *report, now time.Time) url.Values {
			return url.Values{}
		},
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-cache.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func openTestStore(t *testing.T) *Store[report] {
	t.Helper()
	s, err := New(openTestDB(t), reportSchema(), slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sampleReports() []report {
	day := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	return []report{
		{Reference: "2024-01", Date: day, Latitude: 5.1, Longitude: 100.2, Hostility: "Pirates"},
		{Reference: "2024-02", Date: day, Latitude: 5.3, Longitude: 100.4, Hostility: "Robbers"},
		{Reference: "1969-01", Date: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC), Latitude: -3.0, Longitude: 40.0, Hostility: "Unknown"},
	}
}

func TestBatchImport_InsertedCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.BatchImport(ctx, sampleReports())
	if err != nil {
		t.Fatalf("BatchImport: %v", err)
	}
	if inserted != 3 {
		t.Errorf("inserted = %d, want 3", inserted)
	}
}

func TestBatchImport_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("first BatchImport: %v", err)
	}
	inserted, err := s.BatchImport(ctx, sampleReports())
	if err != nil {
		t.Fatalf("second BatchImport: %v", err)
	}
	if inserted != 0 {
		t.Errorf("second import inserted = %d, want 0", inserted)
	}
	n, err := s.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("count after re-import = %d, want 3", n)
	}
}

func TestBatchImport_NaturalKeyUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := report{Reference: "2024-09", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Latitude: 1, Longitude: 2, Hostility: "Pirates"}
	second := first
	second.Hostility = "Armed robbers"

	if _, err := s.BatchImport(ctx, []report{first}); err != nil {
		t.Fatalf("BatchImport first: %v", err)
	}
	inserted, err := s.BatchImport(ctx, []report{second})
	if err != nil {
		t.Fatalf("BatchImport second: %v", err)
	}
	if inserted != 0 {
		t.Errorf("update counted as insert: inserted = %d, want 0", inserted)
	}

	n, err := s.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want exactly one record per natural key", n)
	}
	got, err := s.Get(ctx, "2024-09")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Hostility != "Armed robbers" {
		t.Errorf("Get = %+v, want the later record to win", got)
	}
}

func TestGet_Miss(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Get(context.Background(), "no-such-ref")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get miss = %+v, want nil", got)
	}
}

func TestGetNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	newest, err := s.GetNewest(ctx)
	if err != nil {
		t.Fatalf("GetNewest on empty store: %v", err)
	}
	if newest != nil {
		t.Errorf("GetNewest on empty store = %+v, want nil", newest)
	}

	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}
	newest, err = s.GetNewest(ctx)
	if err != nil {
		t.Fatalf("GetNewest: %v", err)
	}
	if newest == nil || newest.Date.Year() != 2024 {
		t.Errorf("GetNewest = %+v, want a 2024 record", newest)
	}
}

func TestCount_Filtered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}

	f, err := model.NewFilter(reportHostProp, model.CompareContains, "Pirate")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	n, err := s.Count(ctx, []model.FilterParameter{f})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("filtered count = %d, want 1", n)
	}
}

func TestGetInBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}

	recs, err := s.GetInBounds(ctx, nil, 4.0, 6.0, 99.0, 101.0)
	if err != nil {
		t.Fatalf("GetInBounds: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("records in bounds = %d, want 2", len(recs))
	}
}

func TestPaginatedQuery_SectionHeaders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}

	res, err := s.PaginatedQuery(ctx, nil, nil, 0, "")
	if err != nil {
		t.Fatalf("PaginatedQuery: %v", err)
	}

	var headers, listItems int
	for _, item := range res.Items {
		switch item.Kind {
		case model.KindSectionHeader, model.KindPeriod:
			headers++
		case model.KindListItem:
			listItems++
		}
	}
	if headers != 2 {
		t.Errorf("section headers = %d, want 2", headers)
	}
	if listItems != 3 {
		t.Errorf("list items = %d, want 3", listItems)
	}

	// A header always immediately precedes its first matching item.
	if res.Items[0].Kind != model.KindSectionHeader || res.Items[0].Header != "2024-01-12" {
		t.Errorf("items[0] = %+v, want 2024-01-12 header", res.Items[0])
	}
	if res.Items[1].Kind != model.KindListItem {
		t.Errorf("items[1] = %+v, want list item", res.Items[1])
	}
	if res.Items[3].Kind != model.KindSectionHeader || res.Items[3].Header != "1969-12-31" {
		t.Errorf("items[3] = %+v, want 1969-12-31 header", res.Items[3])
	}
	if res.LastSectionHeader != "1969-12-31" {
		t.Errorf("LastSectionHeader = %q, want 1969-12-31", res.LastSectionHeader)
	}
}

func TestPaginatedQuery_PriorHeaderSuppressesRepeat(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}

	// Simulating a follow-on page whose first record continues the prior
	// page's section: no leading header.
	res, err := s.PaginatedQuery(ctx, nil, nil, 0, "2024-01-12")
	if err != nil {
		t.Fatalf("PaginatedQuery: %v", err)
	}
	if res.Items[0].Kind != model.KindListItem {
		t.Errorf("items[0] = %+v, want list item (header suppressed)", res.Items[0])
	}
}

func TestPaginatedQuery_NoSectionSortNoHeaders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.BatchImport(ctx, sampleReports()); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}

	sorts := []model.SortParameter{{Property: reportHostProp, Ascending: true}}
	res, err := s.PaginatedQuery(ctx, nil, sorts, 0, "")
	if err != nil {
		t.Fatalf("PaginatedQuery: %v", err)
	}
	for _, item := range res.Items {
		if item.Kind != model.KindListItem {
			t.Fatalf("unexpected header %+v without a section sort", item)
		}
	}
}

func TestPaginatedQuery_Exhaustion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := make([]report, 250)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range records {
		records[i] = report{
			Reference: fmt.Sprintf("2024-%03d", i),
			Date:      base.Add(time.Duration(i) * time.Hour),
			Latitude:  1,
			Longitude: 1,
		}
	}
	if _, err := s.BatchImport(ctx, records); err != nil {
		t.Fatalf("BatchImport: %v", err)
	}

	sorts := []model.SortParameter{{Property: reportDateProp, Ascending: true}}
	prior := ""
	var rows int
	for page := 0; page < 3; page++ {
		res, err := s.PaginatedQuery(ctx, nil, sorts, page, prior)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(res.Items) == 0 {
			t.Fatalf("page %d empty, want non-empty", page)
		}
		if res.NextPage != page+1 {
			t.Errorf("page %d NextPage = %d, want %d", page, res.NextPage, page+1)
		}
		rows += len(res.Items)
		prior = res.LastSectionHeader
	}
	if rows != 250 {
		t.Errorf("total rows = %d, want 250", rows)
	}

	res, err := s.PaginatedQuery(ctx, nil, sorts, 3, prior)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("page 3 items = %d, want 0 (exhausted)", len(res.Items))
	}
}

func TestBatchImport_EmptyBatch(t *testing.T) {
	s := openTestStore(t)
	inserted, err := s.BatchImport(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchImport(nil): %v", err)
	}
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0", inserted)
	}
}
