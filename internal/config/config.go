package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "CHORDFOLD"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "chordfold.db"
	defaultLogLevel      = "info"
	defaultTokenTTL      = 30
	defaultRetentionDays = 14
	defaultVolatileMB    = 4
	defaultCompactionMin = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	SigningSecret      string
	TokenTTL           time.Duration
	DatabasePath       string
	LogLevel           string
	DraftRetention     time.Duration
	VolatileBudget     int
	CompactionInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("drafts.retention_days", defaultRetentionDays)
	configViper.SetDefault("drafts.volatile_budget_mb", defaultVolatileMB)
	configViper.SetDefault("drafts.compaction_interval_minutes", defaultCompactionMin)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		DraftRetention:     time.Duration(configViper.GetInt("drafts.retention_days")) * 24 * time.Hour,
		VolatileBudget:     configViper.GetInt("drafts.volatile_budget_mb") * 1024 * 1024,
		CompactionInterval: time.Duration(configViper.GetInt("drafts.compaction_interval_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.DraftRetention <= 0 {
		return fmt.Errorf("drafts.retention_days must be positive")
	}
	if c.VolatileBudget <= 0 {
		return fmt.Errorf("drafts.volatile_budget_mb must be positive")
	}
	return nil
}
