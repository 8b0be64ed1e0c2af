package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/algoshield/catalog"
	"github.com/liamcoop/algoshield/internal/config"
	"github.com/liamcoop/algoshield/internal/logger"
	"github.com/liamcoop/algoshield/internal/metrics"
	"github.com/liamcoop/algoshield/matcher"
	"github.com/liamcoop/algoshield/rules"
	"github.com/liamcoop/algoshield/sessions"
)

// app holds everything main builds so it can be torn down in order.
type app struct {
	server   *Server
	catalog  *catalog.Catalog
	sessions *sessions.Manager
	metrics  *metrics.Collector
	sweeper  *sessions.Sweeper
	db       *sql.DB
	cfg      *config.AppConfig
}

func buildApp(cfg *config.AppConfig) (*app, error) {
	collector := metrics.NewCollector(nil)

	engineOpts := []rules.Option{
		rules.WithObserver(collector),
		rules.WithLogger(logger.Logger),
	}
	if cfg.RandomSeed != 0 {
		engineOpts = append(engineOpts, rules.WithRandomSource(rules.NewSeededRandom(cfg.RandomSeed)))
	}

	catalogOpts := []catalog.Option{
		catalog.WithLogger(logger.Logger),
		catalog.WithCache(catalog.NewInMemoryRulesCache(catalog.CacheConfig{TTL: cfg.CacheTTL})),
	}

	if cfg.Matcher == "cel" {
		m, err := matcher.NewCELMatcher(cfg.MatcherCacheSize, logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create matcher: %w", err)
		}
		engineOpts = append(engineOpts, rules.WithTextMatcher(m))
		catalogOpts = append(catalogOpts, catalog.WithPatternCompiler(m))
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(store, catalogOpts...)
	if cfg.SeedPresets && cfg.CatalogSource != "file" {
		added, err := cat.Seed(rules.DefaultPresets())
		if err != nil {
			return nil, fmt.Errorf("failed to seed presets: %w", err)
		}
		logger.Info("catalog seeded", "added", added)
	}

	mgr := sessions.NewManager(cat,
		sessions.WithEngineOptions(engineOpts...),
		sessions.WithRecorder(collector),
		sessions.WithActivitySize(cfg.ActivitySize),
		sessions.WithLogger(logger.Logger),
	)

	return &app{
		server:   NewServer(cat, mgr, collector, db),
		catalog:  cat,
		sessions: mgr,
		metrics:  collector,
		sweeper:  sessions.NewSweeper(mgr, cfg.SweepSchedule, cfg.SessionIdleTimeout),
		db:       db,
		cfg:      cfg,
	}, nil
}

func openStore(cfg *config.AppConfig) (catalog.RuleStore, *sql.DB, error) {
	switch cfg.CatalogSource {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return catalog.NewPostgresRuleStore(db), db, nil

	case "file":
		store, err := catalog.NewFileRuleStore(cfg.CatalogFile)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		return catalog.NewInMemoryRuleStore(), nil, nil
	}
}

// watchCatalog reloads the catalog file on change and pushes the new rules
// into every live session.
func (a *app) watchCatalog(ctx context.Context) error {
	w, err := catalog.NewWatcher(a.cfg.CatalogFile, catalog.DefaultDebounce, logger.Logger)
	if err != nil {
		return err
	}

	go func() {
		err := w.Run(ctx, func() error {
			err := a.catalog.Reload()
			a.metrics.CatalogReloaded(err)
			if err != nil {
				return err
			}
			return a.sessions.ReloadAll()
		})
		if err != nil {
			logger.Error("catalog watcher stopped", "error", err)
		}
	}()
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level, _ := logger.ParseLevel(cfg.LogLevel)
	if err := logger.Setup(ctx, logger.Options{
		Level:       level,
		SampleRate:  cfg.LogSampleRate,
		OTEL:        cfg.OTELEnabled,
		ServiceName: cfg.OTELServiceName,
	}); err != nil {
		logger.Warn("logger setup degraded", "error", err)
	}

	a, err := buildApp(cfg)
	if err != nil {
		logger.Fatal("failed to start", "error", err)
	}
	if a.db != nil {
		defer a.db.Close()
	}

	if err := a.sweeper.Start(); err != nil {
		logger.Fatal("failed to start session sweeper", "error", err)
	}
	defer a.sweeper.Stop()

	if cfg.CatalogSource == "file" && cfg.WatchCatalog {
		if err := a.watchCatalog(ctx); err != nil {
			logger.Fatal("failed to watch catalog file", "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      a.server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"catalog_source", cfg.CatalogSource,
			"matcher", cfg.Matcher,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}

	logger.Info("server stopped")
}
