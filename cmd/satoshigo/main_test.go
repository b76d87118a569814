package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshigo/hunt/internal/config"
	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/internal/payment"
	"github.com/satoshigo/hunt/internal/storage/memory"
	sqlitestorage "github.com/satoshigo/hunt/internal/storage/sqlite"
)

func quietManager() *logging.SlogManager {
	m := logging.NewSlogManager()
	m.Setup(io.Discard, "error", nil)
	return m
}

func TestCreateStorageBackend(t *testing.T) {
	m := quietManager()

	b, err := createStorageBackend(config.StorageConfig{Type: "memory"}, m)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "cassandra"}, m)
	assert.ErrorContains(t, err, `unknown storage type "cassandra"`)
}

func TestCreateStorageBackend_SQLite(t *testing.T) {
	dir := t.TempDir()
	b, err := createStorageBackend(config.StorageConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "hunt.db")},
	}, quietManager())
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
}

func TestReadOnlyStorage(t *testing.T) {
	cfg := config.StorageConfig{
		Type: "sqlite",
		SQLite: config.SQLiteConfig{
			DumpInterval: 3 * time.Minute,
			DumpPath:     "./satoshigo.db",
		},
	}
	got := readOnlyStorage(cfg)
	assert.Equal(t, "./satoshigo.db", got.SQLite.Path)
	assert.Empty(t, got.SQLite.DumpPath)
	assert.Zero(t, got.SQLite.DumpInterval)

	// file-backed and non-sqlite configs are untouched
	cfg.SQLite.Path = "/data/hunt.db"
	assert.Equal(t, cfg, readOnlyStorage(cfg))
	pg := config.StorageConfig{Type: "postgres"}
	assert.Equal(t, pg, readOnlyStorage(pg))
}

func TestCreatePaymentProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := createPaymentProvider(config.PaymentConfig{Type: "ledger", AutoSettle: time.Second}, logger)
	require.NoError(t, err)
	ledger, ok := p.(*payment.Ledger)
	require.True(t, ok)
	assert.Equal(t, time.Second, ledger.AutoSettle)

	p, err = createPaymentProvider(config.PaymentConfig{Type: "lnbits", URL: "https://lnbits.example", Timeout: time.Second}, logger)
	require.NoError(t, err)
	assert.IsType(t, &payment.Client{}, p)

	_, err = createPaymentProvider(config.PaymentConfig{Type: "paypal"}, logger)
	assert.Error(t, err)
}

func TestRootCommand(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["export"])
	assert.NoError(t, exportCmd.Args(exportCmd, []string{"g1"}))
	assert.Error(t, exportCmd.Args(exportCmd, nil))
}
