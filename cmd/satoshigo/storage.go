package main

import (
	"context"
	"fmt"

	"github.com/satoshigo/hunt/internal/config"
	"github.com/satoshigo/hunt/internal/database"
	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/internal/storage/memory"
	pgstorage "github.com/satoshigo/hunt/internal/storage/postgres"
	sqlitestorage "github.com/satoshigo/hunt/internal/storage/sqlite"
)

// createStorageBackend builds the configured backend. The caller runs Init.
func createStorageBackend(storageCfg config.StorageConfig, logManager *logging.SlogManager) (storage.Backend, error) {
	logger := logManager.Logger()

	switch storageCfg.Type {
	case "memory":
		logger.Info("Memory storage backend initialized")
		return memory.New(), nil

	case "postgres":
		logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			LogManager:   logManager,
			MaxOpenConns: storageCfg.MaxOpenConns,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqliteConfig(storageCfg), logManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path, "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "auto":
		return createAutoBackend(storageCfg, logManager)

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// createAutoBackend prefers postgres and falls back to an in-memory SQLite
// database dumped to disk.
func createAutoBackend(storageCfg config.StorageConfig, logManager *logging.SlogManager) (storage.Backend, error) {
	dbm := database.NewManager(logManager.Zerolog("database"), storageCfg.MaxOpenConns)
	if err := dbm.Connect(context.Background()); err != nil {
		return nil, err
	}
	if err := dbm.Setup(); err != nil {
		return nil, err
	}

	if dbm.Fallback {
		logManager.Logger().Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return sqlitestorage.NewWithDB(dbm.DB, sqliteConfig(storageCfg), logManager), nil
	}
	logManager.Logger().Info("Postgres storage backend initialized")
	return pgstorage.New(pgstorage.Dependencies{
		DB:         dbm.DB,
		LogManager: logManager,
	}), nil
}

func sqliteConfig(storageCfg config.StorageConfig) sqlitestorage.Config {
	return sqlitestorage.Config{
		Path:         storageCfg.SQLite.Path,
		DumpInterval: storageCfg.SQLite.DumpInterval,
		DumpPath:     storageCfg.SQLite.DumpPath,
	}
}

// readOnlyStorage points an in-memory SQLite config at its last dump and
// disables dumping, so a one-shot command sees the data and never
// overwrites the snapshot.
func readOnlyStorage(storageCfg config.StorageConfig) config.StorageConfig {
	if storageCfg.Type == "sqlite" && storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = storageCfg.SQLite.DumpPath
		storageCfg.SQLite.DumpPath = ""
		storageCfg.SQLite.DumpInterval = 0
	}
	return storageCfg
}
