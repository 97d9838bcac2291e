package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

// Supported archive backends.
const (
	ArchiveFilesystem = "filesystem"
	ArchiveS3         = "s3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Archive store configuration
	Archive ArchiveConfig `toml:"archive"`

	// Ingestion request settings
	Ingest IngestConfig `toml:"ingest"`

	// Logging configuration
	Log LogConfig `toml:"log"`

	// Tracing configuration
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL          string        `toml:"url"`
	Driver       string        `toml:"driver"`
	MaxOpenConns int           `toml:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns"`
	MaxLifetime  time.Duration `toml:"max_lifetime"`
	AutoMigrate  bool          `toml:"auto_migrate"`
}

// ArchiveConfig selects where canonical JSON copies are written.
// Backend determines which of the remaining fields are relevant.
type ArchiveConfig struct {
	Backend     string `toml:"backend"` // "filesystem" or "s3"
	StoragePath string `toml:"storage_path"`

	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"-"`
	S3SecretKey string `toml:"-"`
}

// IngestConfig holds per-request ingestion settings
type IngestConfig struct {
	LogsDir     string `toml:"logs_dir"`
	MaxBodySize int64  `toml:"max_body_size"` // in bytes
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "pretty"
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled      bool    `toml:"enabled"`
	ServiceName  string  `toml:"service_name"`
	Endpoint     string  `toml:"endpoint"`
	Insecure     bool    `toml:"insecure"`
	SamplerRatio float64 `toml:"sampler_ratio"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    300 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverPostgres,
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			MaxLifetime:  5 * time.Minute,
			AutoMigrate:  true,
		},
		Archive: ArchiveConfig{
			Backend:     ArchiveFilesystem,
			StoragePath: "storage",
		},
		Ingest: IngestConfig{
			LogsDir:     "logs",
			MaxBodySize: 256 * 1024 * 1024, // 256MB
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "dump-ingestion-api",
			SamplerRatio: 1.0,
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE, an optional .env file and the process environment, in that
// order of increasing precedence.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read decodes TOML from r on top of the defaults.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxLifetime = getDurationEnv("DB_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.AutoMigrate = getBoolEnv("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Archive.Backend = getEnv("ARCHIVE_BACKEND", c.Archive.Backend)
	c.Archive.StoragePath = getEnv("STORAGE_PATH", c.Archive.StoragePath)
	c.Archive.S3Bucket = getEnv("S3_BUCKET", c.Archive.S3Bucket)
	c.Archive.S3Prefix = getEnv("S3_PREFIX", c.Archive.S3Prefix)
	c.Archive.S3Region = getEnv("S3_REGION", c.Archive.S3Region)
	c.Archive.S3Endpoint = getEnv("S3_ENDPOINT", c.Archive.S3Endpoint)
	c.Archive.S3AccessKey = getEnv("AWS_ACCESS_KEY_ID", c.Archive.S3AccessKey)
	c.Archive.S3SecretKey = getEnv("AWS_SECRET_ACCESS_KEY", c.Archive.S3SecretKey)

	c.Ingest.LogsDir = getEnv("LOGS_DIR", c.Ingest.LogsDir)
	c.Ingest.MaxBodySize = getInt64Env("MAX_BODY_SIZE", c.Ingest.MaxBodySize)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Telemetry.Enabled = getBoolEnv("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.Insecure = getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", c.Telemetry.Insecure)
	c.Telemetry.SamplerRatio = getFloatEnv("OTEL_SAMPLER_RATIO", c.Telemetry.SamplerRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be one of: postgres, pgx, sqlite3 (got %q)", c.Database.Driver)
	}
	switch c.Archive.Backend {
	case ArchiveFilesystem:
		if c.Archive.StoragePath == "" {
			return fmt.Errorf("STORAGE_PATH is required for the filesystem archive")
		}
	case ArchiveS3:
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 archive")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be one of: filesystem, s3 (got %q)", c.Archive.Backend)
	}
	if c.Ingest.LogsDir == "" {
		return fmt.Errorf("LOGS_DIR is required")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
