package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// rig is a minimal drilling-unit entity for exercising the client.
type rig struct {
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func rigSchema() *model.Schema[rig] {
	return &model.Schema[rig]{
		Key:      "modu",
		Name:     "MODU",
		Table:    "modus",
		ArrayKey: "modu",
		SortHint: "date",
		Fields: []model.Field{
			{Key: "name", Column: "name", Type: model.TypeString},
			{Key: "date", Column: "date", Type: model.TypeDate},
			{Key: "latitude", Column: "latitude", Type: model.TypeLatitude},
			{Key: "longitude", Column: "longitude", Type: model.TypeLongitude},
		},
		NaturalKeyField: "name",
		OrderingField:   "date",
		LatField:        "latitude",
		LonField:        "longitude",
		Decode: func(data []byte) (rig, error) {
			var r rig
			err := json.Unmarshal(data, &r)
			return r, err
		},
		Valid: func(r rig) bool { return r.Name != "" && r.Latitude != 0 },
		Values: func(r rig) map[string]any {
			return map[string]any{"name": r.Name, "date": r.Date, "latitude": r.Latitude, "longitude": r.Longitude}
		},
		FromValues: func(v map[string]any) rig { return rig{} },
		Summary:    func(r rig) string { return r.Name },
		SinceParams: func(newest *rig, now time.Time) url.Values {
			v := url.Values{}
			if newest != nil {
				v.Set("minSourceDate", newest.Date)
			}
			v.Set("maxSourceDate", now.Add(24*time.Hour).Format("2006-01-02"))
			return v
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client[rig] {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(rigSchema(), srv.URL, srv.Client(), slog.Default())
}

func TestFetch_DecodesAndDropsInvalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Second element is missing its natural key, third has no position.
		fmt.Fprint(w, `{"modu": [
			{"name": "OCEAN VALIANT", "date": "2024-02-01", "latitude": 28.1, "longitude": -89.2},
			{"date": "2024-02-02", "latitude": 1.0, "longitude": 1.0},
			{"name": "GHOST RIG", "date": "2024-02-03"}
		]}`)
	})

	res, err := c.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	if res.Records[0].Name != "OCEAN VALIANT" {
		t.Errorf("record = %+v", res.Records[0])
	}
	if res.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", res.Dropped)
	}
}

func TestFetch_QueryParameters(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		fmt.Fprint(w, `{"modu": []}`)
	})

	newest := &rig{Name: "A", Date: "2024-01-15"}
	if _, err := c.Fetch(context.Background(), newest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if got.Get("output") != "json" {
		t.Errorf("output = %q, want json", got.Get("output"))
	}
	if got.Get("sort") != "date" {
		t.Errorf("sort = %q, want date", got.Get("sort"))
	}
	if got.Get("minSourceDate") != "2024-01-15" {
		t.Errorf("minSourceDate = %q, want the newest local ordering key", got.Get("minSourceDate"))
	}
	if got.Get("maxSourceDate") == "" {
		t.Error("maxSourceDate missing")
	}
	if got.Get("pageSize") == "" || got.Get("pageNum") != "0" {
		t.Errorf("paging params = pageSize %q pageNum %q", got.Get("pageSize"), got.Get("pageNum"))
	}
}

func TestFetch_PagesUntilShortPage(t *testing.T) {
	var pagesServed []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		pageNum, _ := strconv.Atoi(r.URL.Query().Get("pageNum"))
		pagesServed = append(pagesServed, pageNum)

		// Two full pages of 2, then a short page of 1.
		count := 2
		if pageNum == 2 {
			count = 1
		}
		elements := make([]string, count)
		for i := range elements {
			elements[i] = fmt.Sprintf(`{"name": "RIG-%d-%d", "date": "2024-02-01", "latitude": 1.0, "longitude": 1.0}`, pageNum, i)
		}
		fmt.Fprintf(w, `{"modu": [%s]}`, joinJSON(elements))
	})
	c.pageSize = 2

	res, err := c.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Records) != 5 {
		t.Errorf("records = %d, want 5", len(res.Records))
	}
	if len(pagesServed) != 3 || pagesServed[2] != 2 {
		t.Errorf("pages served = %v, want [0 1 2]", pagesServed)
	}
}

func TestFetch_DeclaredTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"modu": [{"name": "A", "date": "2024-02-01", "latitude": 1.0, "longitude": 1.0}], "totalCount": 40}`)
	})

	res, err := c.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.DeclaredTotal != 40 {
		t.Errorf("DeclaredTotal = %d, want 40", res.DeclaredTotal)
	}
}

func TestFetch_DeclaredTotalDefaultsToReceived(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"modu": [
			{"name": "A", "date": "2024-02-01", "latitude": 1.0, "longitude": 1.0},
			{"date": "2024-02-02", "latitude": 1.0, "longitude": 1.0}
		]}`)
	})

	res, err := c.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// One valid + one dropped = two received; no totalCount in envelope.
	if res.DeclaredTotal != 2 {
		t.Errorf("DeclaredTotal = %d, want 2 (received count)", res.DeclaredTotal)
	}
}

func TestFetch_ErrorLeavesNoPartialResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Fetch(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T %v, want *FetchError", err, err)
	}
	if fe.Entity != "modu" {
		t.Errorf("FetchError.Entity = %q", fe.Entity)
	}
}

func TestFetch_SerialisedPerEntity(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, `{"modu": []}`)
	})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Fetch(context.Background(), nil)
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent requests = %d, want 1 (serialised per entity)", maxInFlight.Load())
	}
}

// --- helpers -----------------------------------------------------------------

func joinJSON(elements []string) string {
	out := ""
	for i, e := range elements {
		if i > 0 {
			out += ", "
		}
		out += e
	}
	return out
}
