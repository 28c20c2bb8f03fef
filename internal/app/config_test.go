package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/a11yscan/internal/webclient"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a11yscan.yaml")
	yaml := `
server:
  addr: ":9090"
storage_root: /var/lib/a11yscan
max_concurrent_scans: 8
scan_timeout: 45s
cache:
  memory_entries: 64
  memory_ttl: 1h
webclient:
  client: chromedp
poller:
  interval: 2s
  save_on_complete: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.StorageRoot != "/var/lib/a11yscan" {
		t.Errorf("server/storage not applied: %+v", cfg)
	}
	if cfg.MaxConcurrentScans != 8 || cfg.ScanTimeout != 45*time.Second {
		t.Errorf("scan settings = %d, %s", cfg.MaxConcurrentScans, cfg.ScanTimeout)
	}
	if cfg.Cache.MemoryEntries != 64 || cfg.Cache.MemoryTTL != time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.SweepInterval != 10*time.Minute {
		t.Errorf("unset cache field lost its default: %s", cfg.Cache.SweepInterval)
	}
	if cfg.WebClient.Client != webclient.ClientChromedp {
		t.Errorf("webclient = %q", cfg.WebClient.Client)
	}
	if cfg.Poller.Interval != 2*time.Second || !cfg.Poller.SaveOnComplete {
		t.Errorf("poller = %+v", cfg.Poller)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"A11Y_SERVER_ADDR":             "127.0.0.1:7000",
		"A11Y_MAX_CONCURRENT_SCANS":    "3",
		"A11Y_SCAN_TIMEOUT":            "90s",
		"A11Y_POLLER_SAVE_ON_COMPLETE": "true",
		"A11Y_WEBCLIENT":               "chromedp",
		"A11Y_LOG_LEVEL":               "   ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" || cfg.MaxConcurrentScans != 3 || cfg.ScanTimeout != 90*time.Second {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !cfg.Poller.SaveOnComplete || cfg.WebClient.Client != webclient.ClientChromedp {
		t.Errorf("poller/webclient not applied")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("blank variable overrode log level: %q", cfg.LogLevel)
	}
}

func TestApplyEnv_ReportsEveryBadValue(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"A11Y_MAX_CONCURRENT_SCANS": "many",
		"A11Y_SCAN_TIMEOUT":         "soon",
	}
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, name := range []string{"A11Y_MAX_CONCURRENT_SCANS", "A11Y_SCAN_TIMEOUT"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"no storage", func(c *Config) { c.StorageRoot = "" }, "storage_root"},
		{"zero scans", func(c *Config) { c.MaxConcurrentScans = 0 }, "max_concurrent_scans"},
		{"zero timeout", func(c *Config) { c.ScanTimeout = 0 }, "scan_timeout"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
