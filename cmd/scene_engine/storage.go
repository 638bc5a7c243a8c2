package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/scene-engine/internal/config"
	"github.com/OCAP2/scene-engine/internal/database"
	"github.com/OCAP2/scene-engine/internal/storage"
	gormstorage "github.com/OCAP2/scene-engine/internal/storage/gorm"
	"github.com/OCAP2/scene-engine/internal/storage/memory"
)

// createStorageBackend builds and initializes the configured backend. The
// returned close function releases the backend and any connection it owns.
func createStorageBackend(ctx context.Context, cfg config.StorageConfig, zlog zerolog.Logger, log *slog.Logger) (storage.Backend, func() error, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Type {
	case "", "memory":
		backend := memory.New(cfg.Memory)
		if err := backend.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize memory storage: %w", err)
		}
		log.Info("Memory storage backend initialized", "outputDir", cfg.Memory.OutputDir, "compress", cfg.Memory.CompressOutput)
		return backend, backend.Close, nil

	case "sqlite", "postgres":
		mgr := database.NewManager(cfg, zlog)
		if err := mgr.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		backend := gormstorage.New(gormstorage.Dependencies{
			DB:     mgr.DB,
			Logger: log,
		})
		if err := backend.Init(ctx); err != nil {
			_ = mgr.Close()
			return nil, nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
		}
		if mgr.ShouldSaveLocal && cfg.Type == "postgres" {
			log.Warn("Postgres unavailable, scenes are stored in SQLite", "path", mgr.SqliteFilePath)
		}
		log.Info("Database storage backend initialized", "dialect", mgr.DB.Dialector.Name())
		closeFn := func() error {
			_ = backend.Close()
			return mgr.Close()
		}
		return backend, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
