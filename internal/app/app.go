package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"meal-planner/internal/auth"
	"meal-planner/internal/catalog"
	"meal-planner/internal/config"
	"meal-planner/internal/database"
	"meal-planner/internal/metrics"
	"meal-planner/internal/remote"
	"meal-planner/internal/session"
	"meal-planner/internal/storage"
)

// App holds the application's dependencies.
type App struct {
	Catalog  *catalog.Catalog
	Session  *session.Session
	Verifier *auth.Verifier
	Health   *metrics.Reporter

	cfg     *config.Config
	logger  *zap.Logger
	closers []func() error
}

// New loads the catalog, opens the local cache and the configured remote
// backend, and restores the plan kept in the cache.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	cat, err := catalog.LoadDir(ctx, cfg.RecipesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	cache, err := storage.NewFileCache(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	a := &App{
		Catalog:  cat,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		cfg:      cfg,
		logger:   logger,
	}

	docs, err := a.openRemote(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	a.Session = session.New(cat, cache, docs, session.Config{
		StorageKey: cfg.StorageKey,
		SaveDelay:  cfg.SaveDelay,
	}, logger)
	if err := a.Session.Load(); err != nil {
		logger.Warn("failed to load cached plan", zap.Error(err))
	}
	a.Health = metrics.NewReporter(a, cfg.DataDir)

	logger.Info("application ready",
		zap.Int("recipes", cat.Len()),
		zap.String("remote_backend", cfg.RemoteBackend),
	)
	return a, nil
}

// openRemote returns the document store selected by the configuration, or a
// nil store when the plan only lives in the local cache.
func (a *App) openRemote(ctx context.Context) (remote.DocumentStore, error) {
	switch a.cfg.RemoteBackend {
	case config.BackendMemory:
		store := remote.NewMemoryStore()
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendSQLite:
		db, err := database.NewDB(a.cfg.SQLitePath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return remote.NewSQLiteStore(db.SQL, a.cfg.PollInterval, a.logger), nil
	case config.BackendPostgres:
		store, err := remote.NewPostgresStore(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, nil
	}
}

// SignInFromConfig signs the session in as the configured identity, if any.
func (a *App) SignInFromConfig(ctx context.Context) error {
	if a.cfg.Identity == "" {
		return nil
	}
	if err := a.Session.SignIn(ctx, a.cfg.Identity); err != nil {
		return fmt.Errorf("failed to sign in as %s: %w", a.cfg.Identity, err)
	}
	return nil
}

// RecipeCount implements metrics.Source.
func (a *App) RecipeCount() int { return a.Catalog.Len() }

// PlanSize implements metrics.Source.
func (a *App) PlanSize() int { return len(a.Session.Plan().Items) }

// Backend implements metrics.Source.
func (a *App) Backend() string { return a.cfg.RemoteBackend }

// SignedIn implements metrics.Source.
func (a *App) SignedIn() bool { return a.Session.Identity() != "" }

// Close flushes pending writes and releases the remote backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Session != nil {
		if err := a.Session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session: %w", err))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
