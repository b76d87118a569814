// Package database opens the gorm connections behind the SQL storage
// backends and picks one for the "auto" storage mode.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/satoshigo/hunt/internal/model"
)

// MemoryDSN is the shared in-memory SQLite database used when no file is given.
const MemoryDSN = "file::memory:?cache=shared"

var sqlitePragmas = []string{
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA foreign_keys = ON",
}

// Manager resolves the "auto" storage mode: postgres when it answers a
// ping, otherwise in-memory SQLite that the caller dumps to disk.
type Manager struct {
	DB *gorm.DB
	// Fallback is set when Connect settled on SQLite.
	Fallback bool

	maxOpenConns int
	log          zerolog.Logger
}

// NewManager returns a manager. maxOpenConns caps the postgres pool; zero
// leaves the driver default.
func NewManager(log zerolog.Logger, maxOpenConns int) *Manager {
	return &Manager{log: log, maxOpenConns: maxOpenConns}
}

// Connect opens postgres, or SQLite in memory if postgres cannot be reached.
func (m *Manager) Connect(ctx context.Context) error {
	db, pgErr := OpenPostgres(ctx, m.maxOpenConns)
	if pgErr == nil {
		m.DB, m.Fallback = db, false
		m.log.Info().Str("host", viper.GetString("db.host")).Msg("Connected to postgres")
		return nil
	}

	m.log.Warn().Err(pgErr).Msg("Postgres unavailable, using in-memory SQLite")
	db, err := OpenSQLite("")
	if err != nil {
		return errors.Join(pgErr, fmt.Errorf("sqlite fallback: %w", err))
	}
	m.DB, m.Fallback = db, true
	return nil
}

// Setup migrates the schema on the connected database.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return errors.New("database not connected")
	}
	if err := Migrate(m.DB); err != nil {
		return err
	}
	m.log.Info().Bool("sqlite", m.Fallback).Msg("Database schema ready")
	return nil
}

// Migrate creates or updates every table in model.DatabaseModels.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// PostgresDSN builds a libpq connection string from the db.* config keys.
func PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
		viper.GetString("db.sslmode"),
	)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// OpenPostgres connects with PostgresDSN and pings the server.
func OpenPostgres(ctx context.Context, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: PostgresDSN(), PreferSimpleProtocol: true}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

// OpenSQLite opens the SQLite file at path, or MemoryDSN when path is empty.
// The pool is limited to one connection so writers never see "database is
// locked".
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN
	}
	cfg := gormConfig()
	cfg.PrepareStmt = true

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// Snapshot writes a consistent copy of db to path with VACUUM INTO,
// replacing any previous file.
func Snapshot(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("snapshot path not set")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old snapshot: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}
