package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/njoerd114/msisync/internal/config"
	"github.com/njoerd114/msisync/internal/event"
	"github.com/njoerd114/msisync/internal/model"
	"github.com/njoerd114/msisync/internal/msi"
	"github.com/njoerd114/msisync/internal/remote"
	"github.com/njoerd114/msisync/internal/repo"
	"github.com/njoerd114/msisync/internal/store"
	syncp "github.com/njoerd114/msisync/internal/sync"
)

// lister prints one page of an entity's paginated list view, threading the
// running prior-section-header through the preceding pages so headers land
// exactly where a continuous listing would put them.
type lister func(ctx context.Context, w io.Writer, page int) error

// app holds the wired engine: one repository per bulletin type over a shared
// database, metadata store, and event bus.
type app struct {
	cfg     *config.Config
	db      *store.DB
	meta    *store.MetaStore
	bus     *event.Bus
	syncers []syncp.Syncer
	listers map[string]lister
	log     *slog.Logger
}

// newApp opens the cache database and wires every bulletin type.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	dbPath := cfg.Database
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolving cache DB path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache DB at %q: %w", dbPath, err)
	}
	logger.Info("cache DB opened", "path", dbPath)

	a := &app{
		cfg:     cfg,
		db:      db,
		meta:    store.NewMetaStore(db),
		bus:     event.NewBus(),
		listers: make(map[string]lister),
		log:     logger,
	}

	// Config entity switches are persisted so the metadata store stays the
	// single source of truth for the enabled flag.
	for key, enabled := range cfg.Entities {
		if err := a.meta.SetEnabled(ctx, key, enabled); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := wire(a, msi.ASAMSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.MODUSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.WarningSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.PortSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.RadiobeaconSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.DGPSStationSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.LightSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := wire(a, msi.NoticeSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the cache database.
func (a *app) Close() error { return a.db.Close() }

// coordinator builds the sync coordinator over the wired repositories.
func (a *app) coordinator() *syncp.Coordinator {
	c := syncp.NewCoordinator(a.syncers, a.meta, a.cfg.PollInterval, a.log)
	c.SetDebounce(a.cfg.SyncInterval)
	return c
}

// wire instantiates the store, client, and repository for one bulletin type
// and registers it with the app.
func wire[M any](a *app, schema *model.Schema[M]) error {
	st, err := store.New(a.db, schema, a.log)
	if err != nil {
		return fmt.Errorf("wiring %s store: %w", schema.Key, err)
	}
	client := remote.New(schema, a.cfg.APIURL, nil, a.log)
	r := repo.New(schema, st, client, a.meta, a.bus, a.log)
	r.SetSyncInterval(a.cfg.SyncInterval)

	a.syncers = append(a.syncers, r)
	a.listers[schema.Key] = func(ctx context.Context, w io.Writer, page int) error {
		prior := ""
		for p := 0; p <= page; p++ {
			res, err := r.PaginatedQuery(ctx, nil, nil, p, prior)
			if err != nil {
				return fmt.Errorf("listing %s page %d: %w", schema.Key, p, err)
			}
			if p == page {
				printPage(w, schema.Name, page, res.Items)
				return nil
			}
			if len(res.Items) == 0 {
				fmt.Fprintf(w, "%s: no page %d\n", schema.Name, page)
				return nil
			}
			prior = res.LastSectionHeader
		}
		return nil
	}
	return nil
}

// printPage renders one page of items, headers indented like the list view.
func printPage[M any](w io.Writer, name string, page int, items []model.Item[M]) {
	if len(items) == 0 {
		fmt.Fprintf(w, "%s: page %d is empty\n", name, page)
		return
	}
	fmt.Fprintf(w, "%s (page %d)\n", name, page)
	for _, it := range items {
		switch it.Kind {
		case model.KindSectionHeader, model.KindPeriod:
			fmt.Fprintf(w, "== %s ==\n", it.Header)
		default:
			fmt.Fprintf(w, "  %s\n", it.Summary)
		}
	}
}
