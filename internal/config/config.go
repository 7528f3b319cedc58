package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

// Config keeps runtime settings for the bot.
type Config struct {
	BotToken       string        `yaml:"bot_token"`
	DatabaseURL    string        `yaml:"database_url"`
	HealthAddr     string        `yaml:"health_addr"`
	SessionStore   string        `yaml:"session_store"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
	PersistRetries int           `yaml:"persist_retries"`
	LogLevel       string        `yaml:"log_level"`
	LogPretty      bool          `yaml:"log_pretty"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		DatabaseURL:    "database.db",
		HealthAddr:     ":8080",
		SessionStore:   SessionStoreMemory,
		StatsInterval:  time.Hour,
		PersistRetries: 3,
		LogLevel:       "info",
	}
}

// Load reads and validates the configuration.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Read builds the configuration from defaults, then the optional YAML file at path,
// then environment variables. It does not validate the result.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return cfg, applyEnv(&cfg)
}

func applyEnv(cfg *Config) error {
	var errs []error

	if v := env("BOT_TOKEN"); v != "" {
		cfg.BotToken = v
	} else if v := env("TELEGRAM_TOKEN"); v != "" {
		cfg.BotToken = v
	}
	if v := env("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	// An explicitly empty HEALTH_ADDR disables the liveness server.
	if v, ok := os.LookupEnv("HEALTH_ADDR"); ok {
		cfg.HealthAddr = strings.TrimSpace(v)
	}
	if v := env("SESSION_STORE"); v != "" {
		cfg.SessionStore = strings.ToLower(v)
	}
	if v := env("STATS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STATS_INTERVAL: %w", err))
		} else {
			cfg.StatsInterval = d
		}
	}
	if v := env("PERSIST_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PERSIST_RETRIES: %w", err))
		} else {
			cfg.PersistRetries = n
		}
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_PRETTY: %w", err))
		} else {
			cfg.LogPretty = b
		}
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url must not be empty"))
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q (want %s or %s)", c.SessionStore, SessionStoreMemory, SessionStoreSQLite))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, errors.New("stats interval must not be negative"))
	}
	if c.PersistRetries < 0 {
		errs = append(errs, errors.New("persist retries must not be negative"))
	}
	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
