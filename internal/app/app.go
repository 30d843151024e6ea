// Package app wires configuration, the record store and the presentation adapters
// into one running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"

	"tabledash/internal/api"
	"tabledash/internal/config"
	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
	"tabledash/internal/logging"
	mcpserver "tabledash/internal/mcp"
	"tabledash/internal/metrics"
	"tabledash/internal/service"
	"tabledash/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Run modes.
const (
	ModeMCP  = "mcp"  // MCP server, plus the REST API when http.enabled
	ModeHTTP = "http" // REST API only
)

// App holds every long-lived component of the process.
type App struct {
	configPath string
	cfg        *config.Config

	logCleanup func()
	driver     dbclient.Driver
	journalDB  *storage.DB
	metrics    *metrics.Collector
	tables     *service.TableService
	refresher  *service.Refresher
	watcher    *config.Watcher

	api *api.Server
	mcp *mcpserver.Server

	mu sync.Mutex
}

// New loads the configuration and opens the record store and save journal.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// stdout belongs to the MCP stdio transport.
	a := &App{configPath: configPath, cfg: cfg}
	a.logCleanup = logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.SeqURL)
	slog.Info("configuration loaded", "path", configPath, "driver", cfg.Store.Driver)

	raw, err := dbclient.NewDriver(&cfg.Store.StoreConnection)
	if err != nil {
		a.logCleanup()
		return nil, fmt.Errorf("open store: %w", err)
	}
	if mem, ok := raw.(*dbclient.MemoryDriver); ok {
		seedDemo(mem)
		slog.Info("memory store seeded with demo data")
	}

	a.metrics = metrics.New()
	a.driver = dbclient.Instrument(raw, a.metrics)

	var journal domain.SaveLog
	if !cfg.Journal.Disabled {
		db, err := storage.New(cfg.Journal.Path)
		if err != nil {
			a.driver.Close()
			a.logCleanup()
			return nil, fmt.Errorf("open save journal: %w", err)
		}
		a.journalDB = db
		journal = storage.NewSaveLogStore(db)
		slog.Info("save journal opened", "path", cfg.Journal.Path)
	}

	a.tables = service.NewTableService(a.driver, journal, service.LogEmitter{}, cfg.Store.Timeout)
	a.tables.SetRecorder(a.metrics)
	return a, nil
}

// Run starts the components for mode and blocks until ctx is cancelled or the
// MCP stdio transport ends.
func (a *App) Run(ctx context.Context, mode string) error {
	if mode != ModeMCP && mode != ModeHTTP {
		return fmt.Errorf("unknown mode %q (must be %s or %s)", mode, ModeMCP, ModeHTTP)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.shutdown()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.tables.Ping(pingCtx); err != nil {
		slog.Warn("record store not reachable yet", "err", err)
	}
	pingCancel()

	a.refresher = service.NewRefresher(a.tables, a.cfg.RefreshSchedule(), watchPaths(a.cfg))
	if err := a.refresher.Start(ctx); err != nil {
		return err
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(next *config.Config) { a.reload(ctx, next) })
		if err != nil {
			slog.Warn("config hot-reload not available", "err", err)
		} else {
			a.watcher = w
		}
	}

	if mode == ModeHTTP || a.cfg.HTTP.Enabled {
		a.api = api.NewServer(a.tables, a.metrics.Handler(), a.cfg.Charts)
		if err := a.api.Start(a.cfg.HTTP.Addr()); err != nil {
			return fmt.Errorf("start API server: %w", err)
		}
	}

	errCh := make(chan error, 1)
	if mode == ModeMCP {
		a.mcp = mcpserver.New(a.tables, a.cfg.Charts)
		go func() {
			if a.cfg.MCP.Transport == "http" {
				errCh <- a.mcp.ServeHTTP(fmt.Sprintf("%s:%d", a.cfg.HTTP.Bind, a.cfg.MCP.Port))
				return
			}
			errCh <- a.mcp.ServeStdio()
		}()
	}

	slog.Info("tabledash ready", "mode", mode)
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		slog.Info("MCP transport closed, shutting down")
		return nil
	}
}

func (a *App) reload(ctx context.Context, next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	logging.SetLevel(next.Logging.Level)
	if err := a.refresher.Reschedule(ctx, next.RefreshSchedule(), watchPaths(next)); err != nil {
		slog.Error("refresh reschedule failed", "err", err)
	}
	if !reflect.DeepEqual(next.Store, a.cfg.Store) || next.HTTP != a.cfg.HTTP || next.MCP != a.cfg.MCP {
		slog.Warn("store, http and mcp settings apply on restart")
	}
	a.cfg.Logging = next.Logging
	a.cfg.Refresh = next.Refresh
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.refresher != nil {
		a.refresher.Stop()
	}
	if a.api != nil {
		if err := a.api.Stop(ctx); err != nil {
			slog.Warn("API server shutdown", "err", err)
		}
	}
	if a.mcp != nil {
		if err := a.mcp.Shutdown(ctx); err != nil {
			slog.Warn("MCP server shutdown", "err", err)
		}
	}

	a.tables.WaitSaves(ctx)
	if err := a.driver.Close(); err != nil {
		slog.Warn("close store", "err", err)
	}
	if a.journalDB != nil {
		a.journalDB.Close()
	}
	slog.Info("tabledash stopped")
	a.logCleanup()
}

// watchPaths returns the files whose changes trigger a refresh. A SQLite store is
// watched by default so writes from other processes show up.
func watchPaths(cfg *config.Config) []string {
	if len(cfg.Refresh.Watch) > 0 {
		return cfg.Refresh.Watch
	}
	if cfg.Store.Driver != domain.StoreDriverSQLite || cfg.Store.Host == "" {
		return nil
	}
	paths := []string{cfg.Store.Host}
	for _, file := range cfg.Store.Attach {
		paths = append(paths, file)
	}
	return paths
}
