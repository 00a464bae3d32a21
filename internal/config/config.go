package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "ROSTER"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = database.DriverSQLite
	defaultDatabaseDSN     = "roster.db?_pragma=foreign_keys(1)"
	defaultLogLevel        = "info"
	defaultAuthIssuer      = "roster-admin"
	defaultAuthAudience    = "roster-api"
	defaultTokenTTLMinutes = 60
	defaultSyncSchedule    = "0 2 * * *"
	defaultSyncTimeout     = 30
)

// AppConfig captures runtime configuration for the API server and CLI.
type AppConfig struct {
	HTTPAddress     string
	DatabaseDriver  string
	DatabaseDSN     string
	LogLevel        string
	SigningSecret   string
	TokenIssuer     string
	TokenAudience   string
	TokenTTL        time.Duration
	SyncSchedule    string
	SyncTimeout     time.Duration
	SyncRunOnStart  bool
	RedisAddress    string
	RedisPassword   string
	AllowedOrigins  []string
	ConfigFileInUse string
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
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("sync.schedule", defaultSyncSchedule)
	configViper.SetDefault("sync.timeout_seconds", defaultSyncTimeout)
	configViper.SetDefault("sync.run_on_start", true)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
}

// ReadFile merges an optional YAML/JSON/TOML config file into the viper instance.
func ReadFile(configViper *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	configViper.SetConfigFile(path)
	if err := configViper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:     configViper.GetString("database.dsn"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenIssuer:     configViper.GetString("auth.issuer"),
		TokenAudience:   configViper.GetString("auth.audience"),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		SyncSchedule:    configViper.GetString("sync.schedule"),
		SyncTimeout:     time.Duration(configViper.GetInt("sync.timeout_seconds")) * time.Second,
		SyncRunOnStart:  configViper.GetBool("sync.run_on_start"),
		RedisAddress:    configViper.GetString("redis.address"),
		RedisPassword:   configViper.GetString("redis.password"),
		AllowedOrigins:  configViper.GetStringSlice("http.allowed_origins"),
		ConfigFileInUse: configViper.ConfigFileUsed(),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Database returns the database connection settings.
func (c AppConfig) Database() database.Config {
	return database.Config{Driver: c.DatabaseDriver, DSN: c.DatabaseDSN}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.DatabaseDriver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.SyncSchedule) == "" {
		return fmt.Errorf("sync.schedule is required")
	}
	return nil
}
