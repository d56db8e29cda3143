// Package config loads the engine's runtime configuration once at
// process start, via spf13/viper bound to GOALS_-prefixed environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the process's environment-derived settings.
type Config struct {
	DatabaseURL string

	MaxProgressCount       int
	RetentionSeconds       int // 0 means "none": goals are never swept
	DefaultDeadlineSeconds int
	MemoryLimitMiB         int // 0 means unset
	TimeLimitSeconds       int // 0 means unset
	KillerThreshold        int
	ListenChannel          string
	LogPath                string // "" means stderr only, no rotating file
}

// Retention returns RetentionSeconds as a Duration, or 0 if disabled.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// DefaultDeadline returns DefaultDeadlineSeconds as a Duration.
func (c Config) DefaultDeadline() time.Duration {
	return time.Duration(c.DefaultDeadlineSeconds) * time.Second
}

// TimeLimit returns TimeLimitSeconds as a Duration, or 0 if unset.
func (c Config) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds) * time.Second
}

func defaults(v *viper.Viper) {
	v.SetDefault("max_progress_count", 100)
	v.SetDefault("retention_seconds", 7*24*3600)
	v.SetDefault("default_deadline_seconds", 7*24*3600)
	v.SetDefault("memory_limit_mib", 0)
	v.SetDefault("time_limit_seconds", 0)
	v.SetDefault("killer_threshold", 3)
	v.SetDefault("listen_channel", "goals")
	v.SetDefault("log_path", "")
}

// Load reads a Config from the environment. A bare GOALS_DATABASE_URL
// is sufficient; every other field falls back to a sane default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("goals")
	v.AutomaticEnv()
	defaults(v)

	dsn := v.GetString("database_url")
	if dsn == "" {
		return nil, fmt.Errorf("config: GOALS_DATABASE_URL is required")
	}

	return &Config{
		DatabaseURL:            dsn,
		MaxProgressCount:       v.GetInt("max_progress_count"),
		RetentionSeconds:       v.GetInt("retention_seconds"),
		DefaultDeadlineSeconds: v.GetInt("default_deadline_seconds"),
		MemoryLimitMiB:         v.GetInt("memory_limit_mib"),
		TimeLimitSeconds:       v.GetInt("time_limit_seconds"),
		KillerThreshold:        v.GetInt("killer_threshold"),
		ListenChannel:          v.GetString("listen_channel"),
		LogPath:                v.GetString("log_path"),
	}, nil
}

// Watcher optionally re-reads a subset of tunables — the killer
// threshold and retention window — from a config file, for operators
// who want to retune a running fleet without a restart (the `--watch-
// config` CLI flag). Everything else (DSN, CLI-fixed limits) is read
// once at startup and never changes.
type Watcher struct {
	v        *viper.Viper
	log      *slog.Logger
	onChange func(killerThreshold int, retentionSeconds int)
}

// NewWatcher starts watching path for changes and invokes onChange
// whenever it is rewritten.
func NewWatcher(path string, log *slog.Logger, onChange func(killerThreshold, retentionSeconds int)) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	defaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read watch file %q: %w", path, err)
	}

	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{v: v, log: log, onChange: onChange}

	v.OnConfigChange(func(e fsnotify.Event) {
		w.log.Info("config file changed, reloading watched settings", "path", e.Name)
		w.onChange(v.GetInt("killer_threshold"), v.GetInt("retention_seconds"))
	})
	v.WatchConfig()

	return w, nil
}
