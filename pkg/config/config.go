package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the Redis connection settings used by the sync tracker.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// GoogleConfig holds the OAuth client credentials used for Gmail access.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// OpenAIConfig holds the chat-completions endpoint settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// SyncConfig is the pipeline tuning knob set. It is passed explicitly into the
// orchestrator and workers rather than read from globals so tests can vary it.
type SyncConfig struct {
	// MaxEmails caps the number of stored emails per Gmail account. Zero disables the cap.
	MaxEmails int
	// AutoArchive enables archiving in Gmail after AI processing, subject to the
	// per-category archive_after_processing flag.
	AutoArchive bool
	// DispatchInterval is the delay between ingestion job dispatches within one cycle.
	DispatchInterval time.Duration
	// Workers is the number of queue worker goroutines.
	Workers int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string
	Development bool
	File        string
}

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Google   GoogleConfig
	OpenAI   OpenAIConfig
	Sync     SyncConfig
	Log      LogConfig
}

// Load reads configuration from the environment (prefix INBOXPILOT_) with an
// optional .env file. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetEnvPrefix("inboxpilot")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("google.client_id", "")
	viper.SetDefault("google.client_secret", "")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-3.5-turbo")
	viper.SetDefault("sync.max_emails", 500)
	viper.SetDefault("sync.auto_archive", false)
	viper.SetDefault("sync.dispatch_interval", "500ms")
	viper.SetDefault("sync.workers", 4)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")

	if viper.GetString("database.dsn") == "" {
		return nil, fmt.Errorf("database.dsn must be set (INBOXPILOT_DATABASE_DSN)")
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	dispatchInterval, err := time.ParseDuration(viper.GetString("sync.dispatch_interval"))
	if err != nil {
		dispatchInterval = 500 * time.Millisecond
	}

	maxEmails := viper.GetInt("sync.max_emails")
	if maxEmails < 0 {
		maxEmails = 0
	}

	workers := viper.GetInt("sync.workers")
	if workers <= 0 {
		workers = 4
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Google: GoogleConfig{
			ClientID:     viper.GetString("google.client_id"),
			ClientSecret: viper.GetString("google.client_secret"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  viper.GetString("openai.api_key"),
			BaseURL: strings.TrimRight(viper.GetString("openai.base_url"), "/"),
			Model:   viper.GetString("openai.model"),
		},
		Sync: SyncConfig{
			MaxEmails:        maxEmails,
			AutoArchive:      viper.GetBool("sync.auto_archive"),
			DispatchInterval: dispatchInterval,
			Workers:          workers,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
	}

	return cfg, nil
}
