package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "CPI_TRACKER_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	natsURLEnv        = "NATS_URL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	pauseEnv          = "COLLECTOR_PAUSE"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Collector     CollectorConfig    `yaml:"collector"`
	Export        ExportConfig       `yaml:"export"`
	Redis         RedisConfig        `yaml:"redis"`
	NATS          NATSConfig         `yaml:"nats"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects and configures the price ledger backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	MaxConns int32  `yaml:"maxConns"`
}

// CollectorConfig describes the collection pass.
type CollectorConfig struct {
	ProductsFile   string         `yaml:"productsFile"`
	UserAgent      string         `yaml:"userAgent"`
	RequestTimeout time.Duration  `yaml:"requestTimeout"`
	Pause          time.Duration  `yaml:"pause"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the collector timezone string to a time.Location.
func (c CollectorConfig) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ExportConfig controls the CSV projection written after a collection run.
type ExportConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// RedisConfig enables the cross-run day guard when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	DB       int           `yaml:"db"`
	Password string        `yaml:"password"`
	Prefix   string        `yaml:"prefix"`
	ClaimTTL time.Duration `yaml:"claimTtl"`
}

// NATSConfig enables price-observed events when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig points at a node_exporter textfile; empty disables it.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the file named by CPI_TRACKER_CONFIG.
func Load() (Config, error) {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom reads .env (if present), the YAML file at path (if any) and applies
// environment overrides on top of defaults. A named but unreadable or invalid
// file is a configuration error.
func LoadFrom(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}

	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(pauseEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Collector.Pause = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.Collector.Pause = time.Duration(secs) * time.Second
		} else {
			log.Printf("config: invalid %s=%q, keeping %s", pauseEnv, v, c.Collector.Pause)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Collector.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Collector.location = loc
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case DriverFile:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the %s driver", DriverFile)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.Path != "" {
		base.Database.Path = override.Database.Path
	}
	if override.Database.MaxConns > 0 {
		base.Database.MaxConns = override.Database.MaxConns
	}

	if override.Collector.ProductsFile != "" {
		base.Collector.ProductsFile = override.Collector.ProductsFile
	}
	if override.Collector.UserAgent != "" {
		base.Collector.UserAgent = override.Collector.UserAgent
	}
	if override.Collector.RequestTimeout > 0 {
		base.Collector.RequestTimeout = override.Collector.RequestTimeout
	}
	if override.Collector.Pause > 0 {
		base.Collector.Pause = override.Collector.Pause
	}
	if override.Collector.Timezone != "" {
		base.Collector.Timezone = override.Collector.Timezone
	}

	if override.Export.Path != "" {
		base.Export.Path = override.Export.Path
	}
	if override.Export.Limit > 0 {
		base.Export.Limit = override.Export.Limit
	}

	if override.Redis.Addr != "" {
		base.Redis = override.Redis
	}

	if override.NATS.URL != "" {
		base.NATS.URL = override.NATS.URL
	}
	if override.NATS.Subject != "" {
		base.NATS.Subject = override.NATS.Subject
	}

	if override.Metrics.TextfilePath != "" {
		base.Metrics.TextfilePath = override.Metrics.TextfilePath
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: DriverFile, Path: "cpi_data.json", MaxConns: 4},
		Collector: CollectorConfig{
			ProductsFile:   "products.json",
			RequestTimeout: 15 * time.Second,
			Pause:          2 * time.Second,
			Timezone:       defaultTimezone,
			location:       tz,
		},
		Export:  ExportConfig{Path: "price_data_export.csv", Limit: 1000},
		NATS:    NATSConfig{Subject: "cpi.prices.observed"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
