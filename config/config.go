// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = "5000"
	defaultDriver          = "mysql"
	defaultCacheRoot       = "."
	defaultCitiesFile      = "cities.json"
	defaultMaxAgeDays      = 1
	defaultPageTimeout     = 5 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
)

// ServerConfig is the HTTP listener. PORT overrides the port.
type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
}

// DatabaseConfig selects the SQL engine. DSN wins over the discrete MySQL fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=mysql postgres sqlite3"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// CacheConfig locates the on-disk cache tree and the cities file.
type CacheConfig struct {
	Root       string `yaml:"root" validate:"required"`
	CitiesFile string `yaml:"cities_file" validate:"required"`
}

// DataFreshnessConfig sets the age, in days, at which cached files go stale.
type DataFreshnessConfig struct {
	MaxAgeDays int `yaml:"max_age_days" validate:"gte=1"`
}

// FetchConfig bounds the page scrape and the archive download. The *Str fields hold the
// YAML durations; Load parses them into PageTimeout and DownloadTimeout.
type FetchConfig struct {
	PageTimeoutStr     string        `yaml:"page_timeout"`
	DownloadTimeoutStr string        `yaml:"download_timeout"`
	PageTimeout        time.Duration `yaml:"-"`
	DownloadTimeout    time.Duration `yaml:"-"`
}

// RefreshConfig schedules repeated refresh runs.
type RefreshConfig struct {
	IntervalStr string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"` // zero means run once
}

// LoggingConfig picks the zerolog level and the console or json output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Config is the whole application configuration as read from config.yaml.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	DataFreshness DataFreshnessConfig `yaml:"data_freshness"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Load reads configuration from an optional YAML file, then applies .env and
// environment overrides. An empty configPath means defaults plus environment only.
func Load(configPath string) (Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Config: could not read .env file")
	}

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.parseDurations(); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server:        ServerConfig{Port: defaultPort},
		Database:      DatabaseConfig{Driver: defaultDriver, Host: "localhost", Port: "3306"},
		Cache:         CacheConfig{Root: defaultCacheRoot, CitiesFile: defaultCitiesFile},
		DataFreshness: DataFreshnessConfig{MaxAgeDays: defaultMaxAgeDays},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CACHE_ROOT"); v != "" {
		c.Cache.Root = v
	}
	if v := os.Getenv("CITIES_FILE"); v != "" {
		c.Cache.CitiesFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) parseDurations() error {
	var err error

	c.Fetch.PageTimeout = defaultPageTimeout
	if c.Fetch.PageTimeoutStr != "" {
		if c.Fetch.PageTimeout, err = time.ParseDuration(c.Fetch.PageTimeoutStr); err != nil {
			return fmt.Errorf("failed to parse fetch.page_timeout: %w", err)
		}
	}

	c.Fetch.DownloadTimeout = defaultDownloadTimeout
	if c.Fetch.DownloadTimeoutStr != "" {
		if c.Fetch.DownloadTimeout, err = time.ParseDuration(c.Fetch.DownloadTimeoutStr); err != nil {
			return fmt.Errorf("failed to parse fetch.download_timeout: %w", err)
		}
	}

	if c.Refresh.IntervalStr != "" {
		if c.Refresh.Interval, err = time.ParseDuration(c.Refresh.IntervalStr); err != nil {
			return fmt.Errorf("failed to parse refresh.interval: %w", err)
		}
	}
	return nil
}
