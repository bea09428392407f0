package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/julianstephens/streakline/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Interval.Duration != 15*time.Minute || cfg.Widget.Days != 90 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[sync]
interval = "5m"
concurrency = 2

[source]
path = "/tmp/health.json"

[daemon]
metrics_addr = "127.0.0.1:9464"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Interval.Duration != 5*time.Minute || cfg.Sync.Concurrency != 2 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.RefreshBurst != 2 {
		t.Errorf("unset key lost its default: %+v", cfg.Sync)
	}
	if cfg.Source.Path != "/tmp/health.json" || cfg.Daemon.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", "[sync\ninterval = "},
		{"bad duration", "[sync]\ninterval = \"soon\""},
		{"interval too short", "[sync]\ninterval = \"10s\""},
		{"unknown key", "[sync]\nintervall = \"5m\""},
		{"window too large", "[widget]\ndays = 1000"},
		{"notify url without scheme", "[daemon]\nnotify_url = \"localhost:9000\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Source.Path = "/data/source.json"
	cfg.Sync.Interval = Duration{30 * time.Minute}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}
