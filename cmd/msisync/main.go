// Msisync keeps a local SQLite cache of maritime-safety bulletins (ASAMs,
// MODUs, navigational warnings, world ports, radiobeacons, DGPS stations,
// lights, and notices to mariners) in sync with the remote publication API
// and serves filtered, paginated views of the cache.
//
// Usage:
//
//	msisync daemon [--config <path>] [--verbose]     # poll and sync continuously
//	msisync sync-once [--config ...] [--force]       # single refresh pass then exit
//	msisync list <entity> [--page N] [--config ...]  # print one page of the cached list
//	msisync status                                   # show config & per-entity sync state
//	msisync version                                  # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/msisync/internal/config"
	"github.com/njoerd114/msisync/internal/event"
	"github.com/njoerd114/msisync/internal/store"
	"github.com/njoerd114/msisync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "daemon":
		return runSync(os.Args[2:], true)
	case "sync-once":
		return runSync(os.Args[2:], false)
	case "list":
		return runList(os.Args[2:])
	case "status":
		return runStatus()
	case "version":
		fmt.Println("msisync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q; run 'msisync' for usage", cmd)
	}
}

// printUsage shows help.
func printUsage() error {
	fmt.Fprintln(os.Stderr, "msisync: local cache of maritime-safety bulletins")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  msisync daemon [--config ...]           Poll and sync continuously")
	fmt.Fprintln(os.Stderr, "  msisync sync-once [--config ..] [--force] Single refresh pass then exit")
	fmt.Fprintln(os.Stderr, "  msisync list <entity> [--page N]        Print one page of a cached list")
	fmt.Fprintln(os.Stderr, "  msisync status                          Show config & sync state")
	fmt.Fprintln(os.Stderr, "  msisync version                         Print version")
	fmt.Fprintln(os.Stderr, "")

	os.Exit(1)
	return nil // unreachable
}

// loadConfig loads the file at path, or the all-defaults config when the
// default file does not exist. An explicitly given path must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

// setupLogger installs the default slog TextHandler at the chosen level.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// --- Subcommands -------------------------------------------------------------

// runSync handles both "daemon" and "sync-once".
func runSync(args []string, daemon bool) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	force := fs.Bool("force", false, "bypass the refresh debounce")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := setupLogger(*verbose)

	cfg, err := loadConfig(*cfgPath, *cfgPath != defaultCfg)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("config loaded",
		"api_url", cfg.APIURL,
		"sync_interval", cfg.SyncInterval,
		"poll_interval", cfg.PollInterval,
	)

	// --- Telemetry (optional) ----------------------------------------------

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("closing cache DB", "error", closeErr)
		}
	}()

	coord := a.coordinator()

	if !daemon {
		logger.Info("running single refresh pass", "force", *force)
		stats, err := coord.RefreshAll(ctx, *force)
		logger.Info("refresh pass done",
			"refreshed", stats.Refreshed,
			"inserted", stats.Inserted,
			"skipped", stats.Skipped,
			"errors", stats.Errors,
		)
		return err
	}

	// Daemon mode: log Updated events the way the list surfaces would react
	// to them.
	go logUpdates(ctx, a.bus.Subscribe(), logger)

	logger.Info("daemon starting", "poll_interval", cfg.PollInterval)
	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync coordinator: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// logUpdates drains the event bus, surfacing insertions.
func logUpdates(ctx context.Context, events <-chan event.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind == event.Updated {
				logger.Info("new records available", "entity", ev.EntityKey, "inserted", ev.Inserted)
			}
		}
	}
}

// runList prints one page of an entity's cached list view.
func runList(args []string) error {
	if len(args) < 1 || args[0] == "" || args[0][0] == '-' {
		return fmt.Errorf("usage: msisync list <entity> [--page N] [--config ...]")
	}
	entity := args[0]

	fs := flag.NewFlagSet("list", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	page := fs.Int("page", 0, "page number to print")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	logger := setupLogger(false)

	cfg, err := loadConfig(*cfgPath, *cfgPath != defaultCfg)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	list, ok := a.listers[entity]
	if !ok {
		return fmt.Errorf("unknown entity %q; one of: asam, modu, warning, port, radiobeacon, dgpsstation, light, ntm", entity)
	}
	return list(ctx, os.Stdout, *page)
}

// runStatus prints the configuration and per-entity sync state.
func runStatus() error {
	cfgPath, _ := config.DefaultPath()

	fmt.Println("msisync status")

	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			fmt.Printf("  Config:   %s (invalid: %v)\n", cfgPath, loadErr)
			return nil
		}
		cfg = loaded
		fmt.Printf("  Config:   %s\n", cfgPath)
	} else {
		fmt.Printf("  Config:   defaults (no file at %s)\n", cfgPath)
	}
	fmt.Printf("  API:      %s\n", cfg.APIURL)

	dbPath := cfg.Database
	if dbPath == "" {
		dbPath, _ = store.DefaultDBPath()
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		fmt.Printf("  Cache DB: not found (%s)\n", dbPath)
		return nil
	}
	fmt.Printf("  Cache DB: %s (%s)\n", dbPath, humanSize(info.Size()))

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening cache DB: %w", err)
	}
	defer func() { _ = db.Close() }()

	metas, err := store.NewMetaStore(db).All(context.Background())
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("  Entities: none synced yet")
		return nil
	}
	fmt.Println("  Entities:")
	for _, m := range metas {
		state := "enabled"
		if !m.Enabled {
			state = "disabled"
		}
		last := "never"
		if !m.LastSyncAt.IsZero() {
			last = m.LastSyncAt.Local().Format(time.RFC3339)
		}
		fmt.Printf("    %-12s %-9s last sync %s", m.EntityKey, state, last)
		if !m.InitialDataLoaded {
			fmt.Print("  (initial load pending)")
		}
		fmt.Println()
	}
	return nil
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
