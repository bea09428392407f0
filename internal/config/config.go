// Package config loads the process-local configuration file.
//
// Store-wide settings that both the writer and the widget must agree on live in
// the database instead; see models.Settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/julianstephens/streakline/internal/constants"
	apperrors "github.com/julianstephens/streakline/internal/errors"
)

// Duration is a time.Duration written as a Go duration string ("15m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Sync   SyncConfig   `toml:"sync"`
	Source SourceConfig `toml:"source"`
	Daemon DaemonConfig `toml:"daemon"`
	Widget WidgetConfig `toml:"widget"`
}

type SyncConfig struct {
	Interval         Duration `toml:"interval"`
	FetchTimeout     Duration `toml:"fetch_timeout"`
	Concurrency      int      `toml:"concurrency"`
	RefreshPerMinute int      `toml:"refresh_per_minute"`
	RefreshBurst     int      `toml:"refresh_burst"`
}

type SourceConfig struct {
	// Path is the JSON file a platform bridge writes daily aggregates to. Empty
	// disables automatic tracking.
	Path string `toml:"path"`
}

type DaemonConfig struct {
	// MetricsAddr serves /metrics, /healthz and /status. Empty disables it.
	MetricsAddr string `toml:"metrics_addr"`
	// SkipBackup disables the backup taken when the daemon starts.
	SkipBackup bool `toml:"skip_backup"`
	// NotifyURL receives a JSON POST when sync starts failing or recovers.
	NotifyURL string `toml:"notify_url"`
}

type WidgetConfig struct {
	Days int `toml:"days"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Sync: SyncConfig{
			Interval:         Duration{constants.DefaultSyncInterval},
			FetchTimeout:     Duration{constants.DefaultFetchTimeout},
			Concurrency:      constants.DefaultFetchConcurrency,
			RefreshPerMinute: constants.DefaultRefreshPerMinute,
			RefreshBurst:     constants.DefaultRefreshBurst,
		},
		Widget: WidgetConfig{Days: constants.DefaultWindowDays},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	path = ExpandPath(path)
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, apperrors.NewConfigError("config file", "%s: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, apperrors.NewConfigError("config file", "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Sync.Interval.Duration < constants.MinSyncInterval {
		return apperrors.NewConfigError("sync.interval", "must be at least %s", constants.MinSyncInterval)
	}
	if c.Sync.FetchTimeout.Duration <= 0 {
		return apperrors.NewConfigError("sync.fetch_timeout", "must be positive")
	}
	if c.Sync.Concurrency < 1 {
		return apperrors.NewConfigError("sync.concurrency", "must be at least 1")
	}
	if c.Sync.RefreshPerMinute < 1 || c.Sync.RefreshBurst < 1 {
		return apperrors.NewConfigError("sync.refresh_per_minute", "refresh rate and burst must be at least 1")
	}
	if u := c.Daemon.NotifyURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return apperrors.NewConfigError("daemon.notify_url", "must be an http or https URL")
	}
	if c.Widget.Days < 1 || c.Widget.Days > constants.MaxWindowDays {
		return apperrors.NewConfigError("widget.days", "must be between 1 and %d", constants.MaxWindowDays)
	}
	return nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
