// Package config loads mealsync configuration from a YAML file and the
// environment. File settings live in ~/.mealsync/config.yaml by default;
// every key can be overridden with a MEALSYNC_-prefixed environment
// variable (MEALSYNC_CACHE_PATH, MEALSYNC_PROJECT_ID, ...).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	// CachePath is the SQLite cache database file.
	CachePath string `mapstructure:"cache_path"`

	// ProjectID is the Firestore project backing the remote store.
	ProjectID string `mapstructure:"project_id"`

	// CredentialsFile is an optional service account key file. Empty means
	// application default credentials.
	CredentialsFile string `mapstructure:"credentials_file"`

	// UserID is the default user for CLI commands.
	UserID string `mapstructure:"user_id"`

	// SyncInterval is the daemon's pass interval.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// PruneInterval is the daemon's tombstone pruning interval.
	PruneInterval time.Duration `mapstructure:"prune_interval"`

	// TombstoneRetention bounds how long remote tombstones are kept.
	TombstoneRetention time.Duration `mapstructure:"tombstone_retention"`

	// DashboardPort is the dashboard's listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile receives rotated logs when set; empty logs to stderr only.
	LogFile string `mapstructure:"log_file"`
}

// DefaultDir returns the mealsync configuration directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mealsync"
	}
	return filepath.Join(home, ".mealsync")
}

// Load reads configuration from the given file, falling back to
// ~/.mealsync/config.yaml. A missing config file is not an error; defaults
// and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cache_path", filepath.Join(DefaultDir(), "journal.db"))
	v.SetDefault("project_id", "")
	v.SetDefault("credentials_file", "")
	v.SetDefault("user_id", "")
	v.SetDefault("log_file", "")
	v.SetDefault("sync_interval", 30*time.Second)
	v.SetDefault("prune_interval", 6*time.Hour)
	v.SetDefault("tombstone_retention", 720*time.Hour)
	v.SetDefault("dashboard_port", 8080)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
	}

	v.SetEnvPrefix("MEALSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync_interval must be positive")
	}
	if cfg.TombstoneRetention <= 0 {
		return nil, fmt.Errorf("tombstone_retention must be positive")
	}

	return &cfg, nil
}
