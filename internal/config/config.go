package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "satoshigo.cfg.json"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// SQLiteConfig holds SQLite storage backend settings.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Type         string       `json:"type" mapstructure:"type"`
	SQLite       SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	MaxOpenConns int          `json:"maxOpenConns" mapstructure:"maxOpenConns"`
}

// PaymentConfig selects and tunes the payment provider.
type PaymentConfig struct {
	Type      string // "ledger" or "lnbits"
	URL       string
	Timeout   time.Duration
	Retries   uint64
	RetryBase time.Duration

	// AutoSettle pays ledger invoices after this delay; zero never pays.
	AutoSettle time.Duration
}

// RelayConfig points at an external fan-out server.
type RelayConfig struct {
	URL    string
	Secret string
}

// BroadcastConfig holds websocket broadcast settings.
type BroadcastConfig struct {
	Hub        bool
	Relay      RelayConfig
	BufferSize int
}

// GameConfig holds gameplay tunables.
type GameConfig struct {
	CaptureRadius   float64
	ProximityCheck  bool
	PendingInterval time.Duration
}

// OTelConfig holds OpenTelemetry configuration.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// Wallet maps API keys to a wallet. Wallets sharing a User are siblings.
type Wallet struct {
	ID         string `json:"id" mapstructure:"id"`
	User       string `json:"user" mapstructure:"user"`
	AdminKey   string `json:"adminKey" mapstructure:"adminKey"`
	InvoiceKey string `json:"invoiceKey" mapstructure:"invoiceKey"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("SATOSHIGO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "15s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./satoshigo.db")
	viper.SetDefault("storage.maxOpenConns", 10)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "satoshigo")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("payment.type", "ledger")
	viper.SetDefault("payment.url", "http://localhost:5000")
	viper.SetDefault("payment.timeout", "10s")
	viper.SetDefault("payment.retries", 3)
	viper.SetDefault("payment.retryBase", "200ms")
	viper.SetDefault("payment.autoSettle", "5s")

	viper.SetDefault("broadcast.hub", true)
	viper.SetDefault("broadcast.relay.url", "")
	viper.SetDefault("broadcast.relay.secret", "")
	viper.SetDefault("broadcast.bufferSize", 1000)

	viper.SetDefault("game.captureRadius", 10)
	viper.SetDefault("game.proximityCheck", false)
	viper.SetDefault("game.pendingInterval", "30s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "satoshigo")
	viper.SetDefault("influx.bucket", "satoshigo")
	viper.SetDefault("influx.backupPath", "./influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "satoshigo")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetServerConfig returns the HTTP listener configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            viper.GetString("server.addr"),
		ReadTimeout:     viper.GetDuration("server.readTimeout"),
		WriteTimeout:    viper.GetDuration("server.writeTimeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdownTimeout"),
	}
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		MaxOpenConns: viper.GetInt("storage.maxOpenConns"),
	}
}

// GetPaymentConfig returns the payment provider configuration.
func GetPaymentConfig() PaymentConfig {
	return PaymentConfig{
		Type:      viper.GetString("payment.type"),
		URL:       strings.TrimRight(viper.GetString("payment.url"), "/"),
		Timeout:   viper.GetDuration("payment.timeout"),
		Retries:   viper.GetUint64("payment.retries"),
		RetryBase: viper.GetDuration("payment.retryBase"),

		AutoSettle: viper.GetDuration("payment.autoSettle"),
	}
}

// GetBroadcastConfig returns the broadcast configuration.
func GetBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		Hub: viper.GetBool("broadcast.hub"),
		Relay: RelayConfig{
			URL:    viper.GetString("broadcast.relay.url"),
			Secret: viper.GetString("broadcast.relay.secret"),
		},
		BufferSize: viper.GetInt("broadcast.bufferSize"),
	}
}

// GetGameConfig returns gameplay tunables.
func GetGameConfig() GameConfig {
	return GameConfig{
		CaptureRadius:   viper.GetFloat64("game.captureRadius"),
		ProximityCheck:  viper.GetBool("game.proximityCheck"),
		PendingInterval: viper.GetDuration("game.pendingInterval"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		URL:        viper.GetString("influx.url"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetGraylogConfig returns the GELF output configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetWallets returns the configured wallets.
func GetWallets() ([]Wallet, error) {
	var wallets []Wallet
	if err := viper.UnmarshalKey("wallets", &wallets); err != nil {
		return nil, fmt.Errorf("invalid wallets config: %w", err)
	}
	for i, w := range wallets {
		if w.ID == "" || (w.AdminKey == "" && w.InvoiceKey == "") {
			return nil, fmt.Errorf("wallet %d: id and at least one key are required", i)
		}
	}
	return wallets, nil
}
