// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/satoshigo/hunt/internal/database"
	"github.com/satoshigo/hunt/internal/logging"
	gormstorage "github.com/satoshigo/hunt/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the postgres storage backend.
type Dependencies struct {
	DB           *gorm.DB // optional; connects from viper db.* keys when nil
	LogManager   *logging.SlogManager
	MaxOpenConns int
}

// Backend implements storage.Backend using GORM/PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new postgres storage backend. The connection is opened by Init.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// Init connects when no DB was injected, validates the connection and runs migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(context.Background(), b.deps.MaxOpenConns)
		if err != nil {
			return err
		}
		b.deps.DB = db
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.deps.DB,
		LogManager: b.deps.LogManager,
	})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
