package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openstats-labs/statcube/internal/config"
	"github.com/openstats-labs/statcube/internal/cube"
	"github.com/openstats-labs/statcube/internal/i18n"
	"github.com/openstats-labs/statcube/internal/preview"
	"github.com/openstats-labs/statcube/internal/state"
	"github.com/openstats-labs/statcube/internal/storage"
	"github.com/openstats-labs/statcube/pkg/adapter"
)

// app wires the configured runtime: the analytical target, the metadata
// store, the buffer store and the engine services on top of them.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      adapter.Adapter
	store   *state.SQLiteStore
	files   *storage.FileStore
	catalog *i18n.Catalog
	builder *cube.Builder
	preview *preview.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := adapter.NewAdapter(cfg.Target.ToAdapterConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, cfg.Target.ToAdapterConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to target: %w", err)
	}

	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, err
	}

	catalog, err := i18n.NewCatalog()
	if err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, err
	}

	files := storage.NewFileStore(cfg.DataDir, logger)
	builder := cube.New(db, store, files, catalog, logger).
		WithRefDataSchema(cfg.RefDataSchema)
	previewSvc := preview.New(db, store, catalog, logger).
		WithPageSizeBounds(cfg.Preview.MinPageSize, cfg.Preview.MaxPageSize)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		store:   store,
		files:   files,
		catalog: catalog,
		builder: builder,
		preview: previewSvc,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
