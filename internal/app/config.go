package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/jobs"
	"github.com/raysh454/a11yscan/internal/poller"
	"github.com/raysh454/a11yscan/internal/scanner"
	"github.com/raysh454/a11yscan/internal/webclient"
)

// EnvPrefix prefixes every environment override, e.g. A11Y_SERVER_ADDR.
const EnvPrefix = "A11Y_"

// ServerConfig is the HTTP surface. The server package reads it from here so
// the whole runtime is configured from one file.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// Config is the runtime configuration of the service and the CLI.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// StorageRoot holds the durable cache tier (refs/ and blobs/).
	StorageRoot string `yaml:"storage_root"`

	// ReportsDB is the SQLite file for saved reports. Relative paths are
	// resolved against StorageRoot.
	ReportsDB string `yaml:"reports_db"`

	// MaxConcurrentScans bounds how many scans run at once.
	MaxConcurrentScans int `yaml:"max_concurrent_scans"`

	// ScanTimeout bounds a single engine run.
	ScanTimeout time.Duration `yaml:"scan_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Cache     cache.Config     `yaml:"cache"`
	Jobs      jobs.Config      `yaml:"jobs"`
	Scanner   scanner.Config   `yaml:"scanner"`
	WebClient webclient.Config `yaml:"webclient"`
	Poller    poller.Config    `yaml:"poller"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			AllowedOrigins:    []string{"*"},
		},
		StorageRoot:        "~/.config/a11yscan",
		ReportsDB:          "reports.db",
		MaxConcurrentScans: 4,
		ScanTimeout:        2 * time.Minute,
		LogLevel:           "info",
		Cache:              cache.DefaultConfig(),
		Jobs:               jobs.DefaultConfig(),
		Scanner:            scanner.DefaultConfig(),
		WebClient:          webclient.DefaultConfig(),
		Poller:             poller.DefaultConfig(),
	}
}

// LoadConfig layers, in order: defaults, the YAML file at path (skipped when
// empty), a .env file in the working directory if present, and A11Y_*
// environment variables. Flags are applied by the caller afterwards.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; existing environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from A11Y_* variables. lookup is os.LookupEnv in
// production and a map in tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	str("STORAGE_ROOT", &c.StorageRoot)
	str("REPORTS_DB", &c.ReportsDB)
	str("LOG_LEVEL", &c.LogLevel)
	integer("MAX_CONCURRENT_SCANS", &c.MaxConcurrentScans)
	duration("SCAN_TIMEOUT", &c.ScanTimeout)
	integer("CACHE_MEMORY_ENTRIES", &c.Cache.MemoryEntries)
	duration("CACHE_MEMORY_TTL", &c.Cache.MemoryTTL)
	duration("JOBS_RETENTION", &c.Jobs.Retention)
	duration("WEBCLIENT_TIMEOUT", &c.WebClient.Timeout)
	duration("POLLER_INTERVAL", &c.Poller.Interval)
	boolean("POLLER_SAVE_ON_COMPLETE", &c.Poller.SaveOnComplete)
	str("POLLER_ENDPOINT", &c.Poller.Endpoint)
	if v, ok := get("WEBCLIENT"); ok {
		c.WebClient.Client = webclient.Client(v)
	}

	return errors.Join(errs...)
}

// Validate checks bounds that would otherwise surface as runtime panics or
// silent misbehavior.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.StorageRoot == "" {
		errs = append(errs, errors.New("storage_root is required"))
	}
	if c.MaxConcurrentScans < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_scans must be >= 1, got %d", c.MaxConcurrentScans))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout))
	}
	if c.Cache.MemoryEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.memory_entries must be >= 0, got %d", c.Cache.MemoryEntries))
	}
	if c.Poller.Interval < 0 {
		errs = append(errs, fmt.Errorf("poller.interval must be >= 0, got %s", c.Poller.Interval))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
