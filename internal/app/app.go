// Package app opens a workspace and wires the services every command needs.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/docstore"
	"jobline/internal/engine"
	"jobline/internal/logging"
	"jobline/internal/migrate"
	"jobline/internal/session"
)

// DefaultAppID namespaces collections when the workspace has no jobline.yml.
const DefaultAppID = "default-app-id"

// Options override workspace settings. Empty fields keep the config values.
type Options struct {
	Workspace     string
	DBPath        string
	OwnerEmail    string
	OwnerPassword string
	LogLevel      string
	LogFormat     string
	LogOutput     io.Writer
}

// App holds the opened workspace.
type App struct {
	Config   *config.Config
	DB       *sqlx.DB
	Store    *docstore.SQLite
	Engine   engine.Engine
	Resolver session.Resolver
	Sessions *session.Registry
	Logger   *slog.Logger
}

// ResolveConfig loads jobline.yml from the workspace, seeding defaults when it is
// missing, and applies the overrides.
func ResolveConfig(opts Options) (*config.Config, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(DefaultAppID)
	}
	if v := strings.TrimSpace(opts.OwnerEmail); v != "" {
		cfg.Owner.Email = v
	}
	if opts.OwnerPassword != "" {
		cfg.Owner.Password = opts.OwnerPassword
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Open opens the workspace database, applies migrations and builds the services.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := ResolveConfig(opts)
	if err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := logging.New(out, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn.DB)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Debug("applied migrations", "count", applied)
	}
	store := docstore.NewSQLite(conn, docstore.WithNamespace(cfg.App.ID), docstore.WithLogger(logger))
	e := engine.New(store, conn, cfg, logger)
	return &App{
		Config: cfg,
		DB:     conn,
		Store:  store,
		Engine: e,
		Resolver: session.Resolver{
			Owner:     session.Credentials{Email: cfg.Owner.Email, Password: cfg.Owner.Password},
			Directory: e.Directory,
			Logger:    logger,
		},
		Sessions: session.NewRegistry(),
		Logger:   logger,
	}, nil
}

// Close ends every session, then closes the store and the database.
func (a *App) Close() error {
	a.Sessions.CloseAll()
	a.Store.Close()
	return a.DB.Close()
}
