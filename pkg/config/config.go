// Package config loads scanner configuration from a file and the environment.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. LIVENESS_SCAN_WORKERS.
const EnvPrefix = "LIVENESS"

// Config holds all configuration for the application.
type Config struct {
	Scan     ScanConfig     `mapstructure:"scan"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ScanConfig tunes sessions and parallel passes.
type ScanConfig struct {
	Workers   int    `mapstructure:"workers"`
	MinSteal  int    `mapstructure:"min_steal"`
	BatchSize int    `mapstructure:"batch_size"`
	Partition string `mapstructure:"partition"` // sharded or batched

	YieldEvery     int `mapstructure:"yield_every"`
	MaxObjectCount int `mapstructure:"max_object_count"`
	// MemoryLimit caps arena memory per session in bytes, 0 for unlimited.
	MemoryLimit int64 `mapstructure:"memory_limit"`
	TimeoutSec  int   `mapstructure:"timeout_sec"`

	Profile            bool `mapstructure:"profile"`
	ProfileThresholdMs int  `mapstructure:"profile_threshold_ms"`
	TopClasses         int  `mapstructure:"top_classes"`

	// HideSystem leaves corlib and engine classes out of histograms.
	HideSystem bool `mapstructure:"hide_system"`
	// AppPrefixes are namespace prefixes of the game's own classes.
	AppPrefixes []string `mapstructure:"app_prefixes"`
}

// Timeout returns the pass timeout, 0 when unset.
func (s ScanConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// ProfileThreshold returns the cutoff below which costs are not reported.
func (s ScanConfig) ProfileThreshold() time.Duration {
	return time.Duration(s.ProfileThresholdMs) * time.Millisecond
}

// SnapshotConfig locates snapshot input and scan output.
type SnapshotConfig struct {
	Path      string `mapstructure:"path"`
	Format    string `mapstructure:"format"` // yaml or json, empty to follow the extension
	OutputDir string `mapstructure:"output_dir"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"`
	// ReportPrefix is the key prefix summaries are uploaded under.
	ReportPrefix string `mapstructure:"report_prefix"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // mysql, postgres or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
	// Path is the sqlite database file, ":memory:" for an in-memory one.
	Path string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from configPath. An empty path searches the
// standard locations; a missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("liveness")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/liveness")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config file", err)
		}
	}
	return decode(v)
}

// LoadFromReader loads configuration from content of the given type.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config", err)
	}
	return decode(v)
}

// Default returns the built-in defaults. Unlike Load it ignores the
// environment, so it never fails.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// fixed defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.min_steal", 4)
	v.SetDefault("scan.batch_size", 64)
	v.SetDefault("scan.partition", "sharded")
	v.SetDefault("scan.yield_every", 0)
	v.SetDefault("scan.max_object_count", 0)
	v.SetDefault("scan.memory_limit", 0)
	v.SetDefault("scan.timeout_sec", 0)
	v.SetDefault("scan.profile", false)
	v.SetDefault("scan.profile_threshold_ms", 1)
	v.SetDefault("scan.top_classes", 20)

	v.SetDefault("snapshot.output_dir", "./output")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")
	v.SetDefault("storage.report_prefix", "reports")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.path", "./liveness.db")

	v.SetDefault("log.level", "info")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return configErr("scan.workers must be at least 1")
	}
	if c.Scan.MinSteal < 1 {
		return configErr("scan.min_steal must be at least 1")
	}
	if c.Scan.BatchSize < 1 {
		return configErr("scan.batch_size must be at least 1")
	}
	switch c.Scan.Partition {
	case "sharded", "batched":
	default:
		return configErr("unsupported partition: %s", c.Scan.Partition)
	}
	if c.Scan.YieldEvery < 0 || c.Scan.MaxObjectCount < 0 || c.Scan.MemoryLimit < 0 || c.Scan.TimeoutSec < 0 {
		return configErr("scan limits must not be negative")
	}
	switch strings.ToLower(c.Snapshot.Format) {
	case "", "yaml", "yml", "json":
	default:
		return configErr("unsupported snapshot format: %s", c.Snapshot.Format)
	}

	if c.Database.Enabled {
		switch c.Database.Type {
		case "mysql", "postgres":
			if c.Database.Host == "" {
				return configErr("database host is required")
			}
		case "sqlite":
			if c.Database.Path == "" {
				return configErr("database path is required for sqlite")
			}
		default:
			return configErr("unsupported database type: %s", c.Database.Type)
		}
	}

	// storage settings are checked by the storage package
	return nil
}

func configErr(format string, args ...interface{}) error {
	return apperrors.New(apperrors.CodeConfigError, fmt.Sprintf(format, args...))
}
