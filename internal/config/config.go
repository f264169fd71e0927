// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Round    RoundConfig    `mapstructure:"round"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Refunds  RefundsConfig  `mapstructure:"refunds"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// RoundConfig holds round lifecycle configuration.
type RoundConfig struct {
	// AutoStart makes the scheduler open a new round whenever none is
	// active.
	AutoStart bool `mapstructure:"auto_start"`
	// AutoStartCron is the schedule on which the auto-start check runs.
	AutoStartCron string `mapstructure:"auto_start_cron"`
	// InitialSeedEth funds the very first round's prize pool.
	InitialSeedEth string `mapstructure:"initial_seed_eth"`
	// RulesetID selects the active ruleset for new rounds.
	RulesetID string `mapstructure:"ruleset_id"`
}

// QuotaConfig holds quota ledger configuration.
type QuotaConfig struct {
	// ShareMinTrust is the minimum external trust score required to claim
	// the daily share bonus.
	ShareMinTrust float64 `mapstructure:"share_min_trust"`
}

// RefundsConfig holds refund worker configuration.
type RefundsConfig struct {
	Cron        string        `mapstructure:"cron"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	BatchSize   int           `mapstructure:"batch_size"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. DATABASE_HOST, SERVER_ADDR, ROUND_RULESET_ID.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wordpot")
	v.SetDefault("database.name", "wordpot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("round.auto_start", true)
	v.SetDefault("round.auto_start_cron", "@every 1m")
	v.SetDefault("round.initial_seed_eth", "0.01")
	v.SetDefault("round.ruleset_id", "default")

	v.SetDefault("quota.share_min_trust", 0.5)

	v.SetDefault("refunds.cron", "@every 30s")
	v.SetDefault("refunds.max_retries", 5)
	v.SetDefault("refunds.base_backoff", "1m")
	v.SetDefault("refunds.batch_size", 50)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
