package repo

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/njoerd114/msisync/internal/event"
	"github.com/njoerd114/msisync/internal/remote"
	"github.com/njoerd114/msisync/internal/store"
)

func newTestRepo(local *mockLocal, rem *mockRemote, meta *mockMeta) (*Repository[beacon], <-chan event.Event) {
	bus := event.NewBus()
	events := bus.Subscribe()
	r := New(beaconSchema(), local, rem, meta, bus, slog.Default())
	return r, events
}

func drainEvents(ch <-chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func result(total int, beacons ...beacon) remote.Result[beacon] {
	return remote.Result[beacon]{Records: beacons, DeclaredTotal: total}
}

func TestRefresh_ImportsAndRecordsSync(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{
		result(2, beacon{Number: 101, Name: "CHATHAM"}, beacon{Number: 102, Name: "SABLE ISLAND"}),
	}}
	meta := newMockMeta()
	r, _ := newTestRepo(local, rem, meta)

	inserted, err := r.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}

	m, err := meta.Get(context.Background(), "radiobeacon")
	if err != nil {
		t.Fatalf("meta.Get: %v", err)
	}
	if m.LastSyncAt.IsZero() || !m.InitialDataLoaded {
		t.Errorf("metadata not recorded: %+v", m)
	}
}

func TestRefresh_Debounce(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{result(1, beacon{Number: 1, Name: "A"})}}
	meta := newMockMeta()
	r, _ := newTestRepo(local, rem, meta)

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if rem.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second refresh debounced)", rem.fetches)
	}
}

func TestRefresh_ForceBypassesDebounce(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{result(1, beacon{Number: 1, Name: "A"})}}
	meta := newMockMeta()
	r, _ := newTestRepo(local, rem, meta)

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := r.Refresh(context.Background(), true); err != nil {
		t.Fatalf("forced Refresh: %v", err)
	}
	if rem.fetches != 2 {
		t.Errorf("fetches = %d, want 2", rem.fetches)
	}
}

func TestRefresh_EventOrdering(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{result(1, beacon{Number: 7, Name: "NANTUCKET"})}}
	r, events := newTestRepo(local, rem, newMockMeta())

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := drainEvents(events)
	want := []event.Kind{event.Loading, event.Loaded, event.Updated}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want kinds %v", got, want)
	}
	for i, kind := range want {
		if got[i].Kind != kind {
			t.Errorf("events[%d].Kind = %s, want %s", i, got[i].Kind, kind)
		}
		if got[i].EntityKey != "radiobeacon" {
			t.Errorf("events[%d].EntityKey = %q", i, got[i].EntityKey)
		}
	}
	if got[2].Inserted != 1 {
		t.Errorf("Updated.Inserted = %d, want 1", got[2].Inserted)
	}
}

func TestRefresh_NoUpdatedEventWhenNothingNew(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{result(1, beacon{Number: 7, Name: "NANTUCKET"})}}
	meta := newMockMeta()
	r, events := newTestRepo(local, rem, meta)

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	drainEvents(events)

	// Same records again: import inserts nothing, so no Updated.
	if _, err := r.Refresh(context.Background(), true); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	got := drainEvents(events)
	if len(got) != 2 || got[0].Kind != event.Loading || got[1].Kind != event.Loaded {
		t.Errorf("events = %v, want Loading then Loaded only", got)
	}
}

func TestRefresh_FetchFailureLeavesCacheAndClearsLoading(t *testing.T) {
	local := newMockLocal()
	local.records[5] = beacon{Number: 5, Name: "KEPT"}
	rem := &mockRemote{err: errors.New("network down")}
	r, events := newTestRepo(local, rem, newMockMeta())

	_, err := r.Refresh(context.Background(), false)
	if err == nil {
		t.Fatal("expected fetch error")
	}

	got := drainEvents(events)
	if len(got) != 2 || got[0].Kind != event.Loading || got[1].Kind != event.Loaded {
		t.Errorf("events = %v, want Loading then Loaded (indicator must clear)", got)
	}
	if len(local.records) != 1 {
		t.Errorf("cache modified on failed refresh: %v", local.records)
	}
}

func TestRefresh_ImportFailurePropagates(t *testing.T) {
	local := newMockLocal()
	local.importErr = &store.BatchInsertError{Entity: "radiobeacon", Err: errors.New("disk full")}
	rem := &mockRemote{results: []remote.Result[beacon]{result(1, beacon{Number: 9, Name: "X"})}}
	r, events := newTestRepo(local, rem, newMockMeta())

	_, err := r.Refresh(context.Background(), false)
	var bie *store.BatchInsertError
	if !errors.As(err, &bie) {
		t.Fatalf("err = %v, want *store.BatchInsertError", err)
	}

	got := drainEvents(events)
	if len(got) != 2 || got[1].Kind != event.Loaded {
		t.Errorf("events = %v, Loaded must still fire on import failure", got)
	}
}

func TestRefresh_BoundedRequeryOnCountMismatch(t *testing.T) {
	local := newMockLocal()
	// Both fetches declare more than they deliver: exactly one requery, then
	// the discrepancy is accepted.
	rem := &mockRemote{results: []remote.Result[beacon]{
		result(10, beacon{Number: 1, Name: "A"}, beacon{Number: 2, Name: "B"}),
		result(10, beacon{Number: 3, Name: "C"}),
	}}
	r, _ := newTestRepo(local, rem, newMockMeta())

	inserted, err := r.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rem.fetches != 2 {
		t.Errorf("fetches = %d, want exactly 2 (initial + one requery)", rem.fetches)
	}
	if inserted != 3 {
		t.Errorf("inserted = %d, want 3 (both batches imported)", inserted)
	}
}

func TestRefresh_RequeryAnchoredAtLastReceived(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{
		result(5, beacon{Number: 1, Name: "A"}, beacon{Number: 2, Name: "B"}),
		result(2, beacon{Number: 3, Name: "C"}, beacon{Number: 4, Name: "D"}),
	}}
	r, _ := newTestRepo(local, rem, newMockMeta())

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(rem.anchors) != 2 {
		t.Fatalf("anchors = %d, want 2", len(rem.anchors))
	}
	if rem.anchors[0] != nil {
		t.Errorf("first fetch anchor = %+v, want nil (empty store)", rem.anchors[0])
	}
	if rem.anchors[1] == nil || rem.anchors[1].Number != 2 {
		t.Errorf("requery anchor = %+v, want last record received (number 2)", rem.anchors[1])
	}
}

func TestRefresh_MatchingCountNoRequery(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{
		result(2, beacon{Number: 1, Name: "A"}, beacon{Number: 2, Name: "B"}),
	}}
	r, _ := newTestRepo(local, rem, newMockMeta())

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rem.fetches != 1 {
		t.Errorf("fetches = %d, want 1", rem.fetches)
	}
}

func TestRefresh_DroppedRecordsCountTowardDeclared(t *testing.T) {
	local := newMockLocal()
	// 1 valid + 1 dropped = 2 received, matching the declared total: the
	// silent drop must not trigger a requery.
	rem := &mockRemote{results: []remote.Result[beacon]{
		{Records: []beacon{{Number: 1, Name: "A"}}, Dropped: 1, DeclaredTotal: 2},
	}}
	r, _ := newTestRepo(local, rem, newMockMeta())

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rem.fetches != 1 {
		t.Errorf("fetches = %d, want 1", rem.fetches)
	}
}

func TestRefresh_DebouncedCallEmitsNoEvents(t *testing.T) {
	local := newMockLocal()
	rem := &mockRemote{results: []remote.Result[beacon]{result(0)}}
	meta := newMockMeta()
	_ = meta.RecordSync(context.Background(), "radiobeacon", time.Now().UTC())
	r, events := newTestRepo(local, rem, meta)

	if _, err := r.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := drainEvents(events); len(got) != 0 {
		t.Errorf("debounced refresh emitted events: %v", got)
	}
	if rem.fetches != 0 {
		t.Errorf("fetches = %d, want 0", rem.fetches)
	}
}
