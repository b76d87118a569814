// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend via composition; the only SQLite-specific concerns are
// creating the in-memory DB and the periodic disk dump.
package sqlitestorage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/satoshigo/hunt/internal/database"
	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/internal/model"
	gormstorage "github.com/satoshigo/hunt/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string // empty for in-memory
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db        *gorm.DB
	cfg       Config
	log       *logging.SlogManager
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}
	return NewWithDB(db, cfg, logManager), nil
}

// NewWithDB wraps an already opened SQLite connection.
func NewWithDB(db *gorm.DB, cfg Config, logManager *logging.SlogManager) *Backend {
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: logManager,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
	}
}

// Init initializes the embedded GORM backend, reloads the last dump of an
// in-memory database and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path == "" && b.cfg.DumpPath != "" {
		if _, err := os.Stat(b.cfg.DumpPath); err == nil {
			if err := b.Restore(b.cfg.DumpPath); err != nil {
				return err
			}
			b.log.WriteLog("sqlite:Init", fmt.Sprintf("Restored snapshot %s", b.cfg.DumpPath), "INFO")
		}
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the DB.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
		if b.cfg.DumpPath != "" {
			if dumpErr := b.Dump(b.cfg.DumpPath); dumpErr != nil {
				b.log.WriteLog("sqlite:Close", fmt.Sprintf("Error dumping to disk: %v", dumpErr), "ERROR")
			}
		}
		err = b.Backend.Close()
	})
	return err
}

// Dump snapshots the database to path.
func (b *Backend) Dump(path string) error {
	return database.Snapshot(b.db, path)
}

// Restore copies every table of the snapshot at path into the database.
// Rows that already exist are kept.
func (b *Backend) Restore(path string) error {
	if err := b.db.Exec("ATTACH DATABASE ? AS snapshot", path).Error; err != nil {
		return fmt.Errorf("error attaching snapshot %s: %w", path, err)
	}
	defer b.db.Exec("DETACH DATABASE snapshot")

	for _, m := range model.DatabaseModels {
		t, ok := m.(interface{ TableName() string })
		if !ok {
			continue
		}
		table := t.TableName()
		err := b.db.Exec(fmt.Sprintf(`INSERT OR IGNORE INTO "%s" SELECT * FROM snapshot."%s"`, table, table)).Error
		if err != nil {
			return fmt.Errorf("error restoring %s: %w", table, err)
		}
	}
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(b.cfg.DumpPath); err != nil {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
			} else {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
			}
		}
	}
}
