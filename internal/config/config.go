package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Bus       BusConfig       `mapstructure:"bus" json:"bus"`
	Mode      ModeConfig      `mapstructure:"mode" json:"mode"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
	Dataset   DatasetConfig   `mapstructure:"dataset" json:"dataset"`
	Watcher   WatcherConfig   `mapstructure:"watcher" json:"watcher"`
	Reload    ReloadConfig    `mapstructure:"reload" json:"reload"`
	Audit     AuditConfig     `mapstructure:"audit" json:"audit"`
	Database  DatabaseConfig  `mapstructure:"database" json:"database"`
	Auth      AuthConfig      `mapstructure:"auth" json:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

type ServerConfig struct {
	ListenPort      int           `mapstructure:"listen_port" json:"listen_port"`
	HTTPPort        int           `mapstructure:"http_port" json:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

type BusConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	MaxConnections int           `mapstructure:"max_connections" json:"max_connections"`
}

type ModeConfig struct {
	Telemetry bool `mapstructure:"telemetry" json:"telemetry"`
}

type TelemetryConfig struct {
	BrokerURL      string        `mapstructure:"broker_url" json:"broker_url"`
	ClientID       string        `mapstructure:"client_id" json:"client_id"`
	Username       string        `mapstructure:"username" json:"username"`
	Password       string        `mapstructure:"password" json:"-"`
	Topic          string        `mapstructure:"topic" json:"topic"`
	QoS            int           `mapstructure:"qos" json:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	Buffer         int           `mapstructure:"buffer" json:"buffer"`
	SpoofFile      string        `mapstructure:"spoof_file" json:"spoof_file"`
}

type DatasetConfig struct {
	DataFile string `mapstructure:"data_file" json:"data_file"`
}

type WatcherConfig struct {
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`
}

// ReloadConfig controls what a failed table reload does.
type ReloadConfig struct {
	FailFast bool `mapstructure:"fail_fast" json:"fail_fast"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Dir     string `mapstructure:"dir" json:"dir"`
	Prefix  string `mapstructure:"prefix" json:"prefix"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
	Host           string `mapstructure:"host" json:"host"`
	Port           int    `mapstructure:"port" json:"port"`
	Database       string `mapstructure:"database" json:"database"`
	User           string `mapstructure:"user" json:"user"`
	Password       string `mapstructure:"password" json:"-"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled" json:"enabled"`
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env" json:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" json:"access_token_ttl"`
	APIKeyHashes   []string      `mapstructure:"api_key_hashes" json:"api_key_hashes"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_port", 10000)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("bus.read_timeout", "0s")
	v.SetDefault("bus.max_connections", 0)

	v.SetDefault("mode.telemetry", false)

	v.SetDefault("telemetry.broker_url", "")
	v.SetDefault("telemetry.client_id", defaultClientID())
	v.SetDefault("telemetry.username", "")
	v.SetDefault("telemetry.password", "")
	v.SetDefault("telemetry.topic", "espaltherma/log")
	v.SetDefault("telemetry.qos", 0)
	v.SetDefault("telemetry.connect_timeout", "10s")
	v.SetDefault("telemetry.buffer", 256)
	v.SetDefault("telemetry.spoof_file", "")

	v.SetDefault("dataset.data_file", "")

	v.SetDefault("watcher.debounce", "50ms")
	v.SetDefault("reload.fail_fast", false)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", "work")
	v.SetDefault("audit.prefix", "altherma_mqtt")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "spoofer")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	// Auth Defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return host + "-spoofer"
}

// Load reads the YAML file at path, applies defaults and SPOOF_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	// SPOOF_TELEMETRY_PASSWORD overrides telemetry.password etc.
	v.SetEnvPrefix("SPOOF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// OperatingMode returns the selected backing source.
func (c *Config) OperatingMode() types.Mode {
	if c.Mode.Telemetry {
		return types.ModeTelemetry
	}
	return types.ModeDataset
}

// TableFile returns the file watched in the selected mode.
func (c *Config) TableFile() string {
	if c.Mode.Telemetry {
		return c.Telemetry.SpoofFile
	}
	return c.Dataset.DataFile
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// GetJWTSecret loads the signing secret from the configured environment variable
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devJWTSecret
	}
	return secret
}

// IsProductionReady reports whether a real secret of sufficient length is set
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
