package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/teemow/agenda/internal/kv"
)

// Environment variables read by Load.
const (
	EnvConfigPath   = "AGENDA_CONFIG"
	EnvClientID     = "GOOGLE_CLIENT_ID"
	EnvClientSecret = "GOOGLE_CLIENT_SECRET"
)

// Defaults applied by Normalize.
const (
	DefaultRefresh        = "*/15 * * * *"
	DefaultPageDays       = 14
	DefaultMaxConcurrency = 8
	DefaultRedirectPort   = 8085
	DefaultMetricsAddr    = "127.0.0.1:9090"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// ErrMissingClient is returned by RequireGoogle when no OAuth client is
// configured.
var ErrMissingClient = errors.New("google client_id and client_secret are required (set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)")

// Config is the agenda configuration.
type Config struct {
	Google GoogleConfig `yaml:"google"`

	// Timezone is the IANA zone in which all-day events start and events are
	// grouped by day. Empty means the system zone.
	Timezone string `yaml:"timezone"`

	// PageDays is the length of the initial window and of each further page.
	PageDays int `yaml:"page_days"`

	// MaxConcurrency bounds concurrent Calendar API calls. Zero selects
	// DefaultMaxConcurrency; a negative value means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Refresh is the cron schedule of the background refresh.
	Refresh string `yaml:"refresh"`

	Storage kv.Config     `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// GoogleConfig holds the OAuth client.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RedirectPort is the loopback port receiving the authorization code.
	RedirectPort int `yaml:"redirect_port"`
}

// MetricsConfig configures the metrics server used by serve.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// Exporter and Tracing override METRICS_EXPORTER and TRACING_EXPORTER.
	Exporter string `yaml:"exporter"`
	Tracing  string `yaml:"tracing"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.PageDays <= 0 {
		c.PageDays = DefaultPageDays
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Refresh == "" {
		c.Refresh = DefaultRefresh
	}
	if c.Google.RedirectPort == 0 {
		c.Google.RedirectPort = DefaultRedirectPort
	}
	if c.Storage.Type == "" {
		c.Storage.Type = kv.TypeFile
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate checks the normalized configuration.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Refresh); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.Refresh, err)
	}
	if c.Google.RedirectPort < 0 || c.Google.RedirectPort > 65535 {
		return fmt.Errorf("invalid redirect_port %d", c.Google.RedirectPort)
	}

	switch c.Storage.Type {
	case kv.TypeFile, kv.TypeSQLite, kv.TypeMemory:
	case kv.TypeValkey:
		if c.Storage.Valkey.URL == "" {
			return fmt.Errorf("storage.valkey.url is required for the valkey backend")
		}
	default:
		return fmt.Errorf("invalid storage type %q, must be one of: file, sqlite, valkey, memory", c.Storage.Type)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format %q, must be one of: text, json", c.Log.Format)
	}
	return nil
}

// RequireGoogle returns ErrMissingClient unless an OAuth client is set.
func (c *Config) RequireGoogle() error {
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return ErrMissingClient
	}
	return nil
}

// Location returns the configured zone, or time.Local when none is set.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// DefaultPath returns AGENDA_CONFIG, or config.yaml in the agenda directory
// of the user config dir.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "agenda", "config.yaml")
}

// Load reads the configuration at path. A missing file yields the defaults.
// Environment overrides are applied, then the result is normalized and
// validated.
func Load(path string) (*Config, error) {
	c := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if c, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	c.applyEnv()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML after expanding ${VAR} references. It does not
// normalize or validate.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvClientID); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Google.ClientSecret = v
	}
}
