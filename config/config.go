/*
Package config loads the billing core's runtime configuration, adapted
from vidinfra-flexprice's internal/config/config.go: viper reads a YAML
file plus environment-variable overrides into a typed struct, rather
than the teacher's ad hoc policy construction in factory/policy.go.

Environment variables use the CONDOMX_ prefix with "_" in place of ".",
e.g. CONDOMX_STORE_PATH overrides store.path.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the billing core's full runtime configuration (spec §9).
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Billing    BillingConfig    `mapstructure:"billing"`
	Backup     BackupConfig     `mapstructure:"backup"`
	ExchangeRate ExchangeRateConfig `mapstructure:"exchange_rate"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Server     ServerConfig     `mapstructure:"server"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver" default:"sqlite"` // logged only; cmd/server always opens the SQLite store
	Path      string `mapstructure:"path" default:"./billing.db"`
	PoolLimit int    `mapstructure:"pool_limit" default:"100"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Pretty bool   `mapstructure:"pretty" default:"false"`
}

// BillingConfig carries the per-client fields spec §4.5 calls
// "frozen at bill-generation time": once a bill period document
// exists, these values must be read off the document, never
// recomputed from live config.
type BillingConfig struct {
	DefaultPenaltyRate       string `mapstructure:"default_penalty_rate" default:"0.05"`
	DefaultGraceDays         int    `mapstructure:"default_grace_days" default:"10"`
	DefaultFiscalStartMonth  int    `mapstructure:"default_fiscal_start_month" default:"1"`
	Timezone                 string `mapstructure:"timezone" default:"America/Cancun"`
}

type BackupConfig struct {
	Enabled  bool   `mapstructure:"enabled" default:"false"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region" default:"us-east-1"`
	KeyPrefix string `mapstructure:"key_prefix" default:"billing-core"`
}

type ExchangeRateConfig struct {
	Enabled    bool          `mapstructure:"enabled" default:"false"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" default:"10s"`
	MaxRetries int           `mapstructure:"max_retries" default:"3"`
}

type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled" default:"false"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" default:"587"`
	From     string `mapstructure:"from"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" default:":8080"`
}

// Load reads ./config/billing.yaml (if present) then environment
// overrides, returning a Config with defaults applied for anything
// neither source set.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("billing")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONDOMX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./billing.db")
	v.SetDefault("store.pool_limit", 100)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("billing.default_penalty_rate", "0.05")
	v.SetDefault("billing.default_grace_days", 10)
	v.SetDefault("billing.default_fiscal_start_month", 1)
	v.SetDefault("billing.timezone", "America/Cancun")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.key_prefix", "billing-core")
	v.SetDefault("exchange_rate.timeout", "10s")
	v.SetDefault("exchange_rate.max_retries", 3)
	v.SetDefault("notify.smtp_port", 587)
	v.SetDefault("server.address", ":8080")
}

// Default returns a Config usable for local development and tests,
// equivalent to Load against an empty environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
