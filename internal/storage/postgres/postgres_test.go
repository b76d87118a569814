package postgres

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"

	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestNew(t *testing.T) {
	b := New(Dependencies{})
	require.NotNil(t, b)
	assert.NotNil(t, b.deps.LogManager)
	// closing before Init is safe
	assert.NoError(t, b.Close())
}

func TestInitClose_InjectedDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b := New(Dependencies{
		DB:         db,
		LogManager: logging.NewSlogManager(),
	})

	require.NoError(t, b.Init())
	require.NotNil(t, b.Backend)
	assert.True(t, db.Migrator().HasTable("satoshigo_fundings"))

	require.NoError(t, b.Close())
}

func TestInit_UnreachableServer(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")
	viper.Set("db.sslmode", "disable")

	b := New(Dependencies{MaxOpenConns: 2})
	assert.Error(t, b.Init())
	assert.Nil(t, b.deps.DB)
}
