package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "postgres", viper.GetString("db.username"))
	assert.Equal(t, "satoshigo", viper.GetString("db.database"))
	assert.Equal(t, "disable", viper.GetString("db.sslmode"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "sqlite", viper.GetString("storage.type"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("SATOSHIGO_SERVER_ADDR", ":9999")

	require.NoError(t, Load(writeConfig(t, `{}`)))
	assert.Equal(t, ":9999", GetServerConfig().Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestTypedGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("game.title", "Harbour")
	viper.Set("game.areas", 42)
	viper.Set("game.open", true)

	assert.Equal(t, "Harbour", GetString("game.title"))
	assert.Equal(t, 42, GetInt("game.areas"))
	assert.True(t, GetBool("game.open"))
	assert.Empty(t, GetString("game.missing"))
}

func TestGetServerConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	sc := GetServerConfig()
	assert.Equal(t, ":8080", sc.Addr)
	assert.Equal(t, 10*time.Second, sc.ReadTimeout)
	assert.Equal(t, 15*time.Second, sc.WriteTimeout)
	assert.Equal(t, 10*time.Second, sc.ShutdownTimeout)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, "", cfg.SQLite.Path)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "./satoshigo.db", cfg.SQLite.DumpPath)
	assert.Equal(t, 10, cfg.MaxOpenConns)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "postgres",
			"sqlite": { "dumpInterval": "10m", "dumpPath": "/tmp/x.db" },
			"maxOpenConns": 4
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "postgres", sc.Type)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/x.db", sc.SQLite.DumpPath)
	assert.Equal(t, 4, sc.MaxOpenConns)
}

func TestGetPaymentConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"payment": { "type": "lnbits", "url": "https://lnbits.example/", "timeout": "3s", "retries": 5 }
	}`)))

	pc := GetPaymentConfig()
	assert.Equal(t, "lnbits", pc.Type)
	assert.Equal(t, "https://lnbits.example", pc.URL)
	assert.Equal(t, 3*time.Second, pc.Timeout)
	assert.Equal(t, uint64(5), pc.Retries)
	assert.Equal(t, 200*time.Millisecond, pc.RetryBase)
	assert.Equal(t, 5*time.Second, pc.AutoSettle)
}

func TestGetBroadcastAndGameConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	bc := GetBroadcastConfig()
	assert.True(t, bc.Hub)
	assert.Equal(t, "", bc.Relay.URL)
	assert.Equal(t, 1000, bc.BufferSize)

	gc := GetGameConfig()
	assert.Equal(t, 10.0, gc.CaptureRadius)
	assert.False(t, gc.ProximityCheck)
	assert.Equal(t, 30*time.Second, gc.PendingInterval)
}

func TestGetInfluxAndGraylogConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "bucket": "hunt" },
		"graylog": { "enabled": true, "address": "gl:12201" }
	}`)))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "hunt", ic.Bucket)
	assert.Equal(t, "http://localhost:8086", ic.URL)

	gc := GetGraylogConfig()
	assert.True(t, gc.Enabled)
	assert.Equal(t, "gl:12201", gc.Address)
}

func TestGetOTelConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		require.NoError(t, Load(writeConfig(t, `{}`)))

		assert.Equal(t, OTelConfig{ServiceName: "satoshigo", BatchTimeout: 5 * time.Second, Insecure: true}, GetOTelConfig())
	})

	t.Run("override", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		require.NoError(t, Load(writeConfig(t, `{
			"otel": { "enabled": true, "serviceName": "hunt-eu", "batchTimeout": "30s", "endpoint": "collector:4318", "insecure": false }
		}`)))

		assert.Equal(t, OTelConfig{
			Enabled:      true,
			ServiceName:  "hunt-eu",
			BatchTimeout: 30 * time.Second,
			Endpoint:     "collector:4318",
		}, GetOTelConfig())
	})
}

func TestGetWallets(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"wallets": [
			{ "id": "w1", "user": "alice", "adminKey": "a1", "invoiceKey": "i1" },
			{ "id": "w2", "user": "alice", "invoiceKey": "i2" }
		]
	}`)))

	ws, err := GetWallets()
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, "w1", ws[0].ID)
	assert.Equal(t, "alice", ws[0].User)
	assert.Equal(t, "a1", ws[0].AdminKey)
	assert.Equal(t, "i2", ws[1].InvoiceKey)
}

func TestGetWallets_Invalid(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{ "wallets": [ { "id": "w1" } ] }`)))

	_, err := GetWallets()
	assert.Error(t, err)
}

func TestGetWallets_None(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	ws, err := GetWallets()
	require.NoError(t, err)
	assert.Empty(t, ws)
}
