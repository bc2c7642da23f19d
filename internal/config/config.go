// Package config loads the estated configuration from an optional YAML file
// and ESTATECORE_* environment overrides.
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

// ServerConfig holds listener configuration.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// S3Config holds S3 / MinIO settings for the blob store.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// BlobConfig selects the blob store used for backups.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	Prefix string `yaml:"prefix"`
}

// MetricsConfig holds metrics exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete estated configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Backup  BackupConfig  `yaml:"backup"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads path (skipped when empty), fills defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	setDefaults(&cfg)

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration.
func setDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "./estatecore.db"
	}

	if cfg.Blob.Driver == "" {
		cfg.Blob.Driver = "fs"
	}
	if cfg.Blob.FSRoot == "" {
		cfg.Blob.FSRoot = "./blobdata"
	}
	if cfg.Blob.S3.Region == "" {
		cfg.Blob.S3.Region = "us-east-1"
	}

	if cfg.Backup.Prefix == "" {
		cfg.Backup.Prefix = "backups"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"ESTATECORE_STORAGE_DRIVER", &cfg.Storage.Driver},
		{"ESTATECORE_SQLITE_PATH", &cfg.Storage.SQLitePath},
		{"ESTATECORE_POSTGRES_DSN", &cfg.Storage.PostgresDSN},
		{"ESTATECORE_BLOB_DRIVER", &cfg.Blob.Driver},
		{"ESTATECORE_BLOB_FS_ROOT", &cfg.Blob.FSRoot},
		{"ESTATECORE_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket},
		{"ESTATECORE_BLOB_S3_REGION", &cfg.Blob.S3.Region},
		{"ESTATECORE_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint},
		{"ESTATECORE_HTTP_ADDR", &cfg.Server.HTTPAddr},
		{"ESTATECORE_GRPC_ADDR", &cfg.Server.GRPCAddr},
		{"ESTATECORE_LOG_LEVEL", &cfg.Logging.Level},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok && v != "" {
			*s.dst = v
		}
	}
	if v, ok := lookup("ESTATECORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ESTATECORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q must be one of memory, sqlite, postgres", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("blob.driver %q must be one of fs, s3, memory", c.Blob.Driver)
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if strings.Contains(c.Backup.Prefix, "..") || strings.HasPrefix(c.Backup.Prefix, "/") {
		return fmt.Errorf("backup.prefix %q must be a relative key prefix", c.Backup.Prefix)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	return nil
}
