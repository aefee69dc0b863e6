package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "dayplanner"

// Credential store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreValkey = "valkey"
	StoreMemory = "memory"
)

// ICSSource is a read-only calendar subscription.
type ICSSource struct {
	ID   string `yaml:"id" toml:"id"`
	Name string `yaml:"name,omitempty" toml:"name,omitempty"`
	URL  string `yaml:"url" toml:"url"`
}

// RetryConfig controls the executor's backoff schedule.
type RetryConfig struct {
	// MaxAttempts bounds throttled retries before a call fails as rate limited.
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
	// MaxNetworkRetries bounds retries after transport failures and 5xx responses.
	MaxNetworkRetries int           `yaml:"max_network_retries" toml:"max_network_retries"`
	BaseBackoff       time.Duration `yaml:"base_backoff" toml:"base_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" toml:"max_backoff"`
	// JitterFraction adds a uniform random delay of up to this fraction of each wait.
	JitterFraction float64 `yaml:"jitter_fraction" toml:"jitter_fraction"`
}

// QuotaConfig describes the client-side fixed request window.
type QuotaConfig struct {
	Window      time.Duration `yaml:"window" toml:"window"`
	MaxRequests int           `yaml:"max_requests" toml:"max_requests"`
	// MaxWait caps the total time a single call may spend waiting for quota.
	MaxWait time.Duration `yaml:"max_wait" toml:"max_wait"`
}

// CredentialConfig configures OAuth and where the refresh token lives.
type CredentialConfig struct {
	ClientID       string        `yaml:"client_id,omitempty" toml:"client_id,omitempty"`
	ClientSecret   string        `yaml:"client_secret,omitempty" toml:"client_secret,omitempty"`
	Account        string        `yaml:"account" toml:"account"`
	SafetyMargin   time.Duration `yaml:"safety_margin" toml:"safety_margin"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" toml:"refresh_timeout"`
	// Store is one of file, sqlite, valkey or memory.
	Store string `yaml:"store" toml:"store"`
	// Path is the credential file or SQLite database path.
	Path       string `yaml:"path,omitempty" toml:"path,omitempty"`
	ValkeyAddr string `yaml:"valkey_addr,omitempty" toml:"valkey_addr,omitempty"`
	// EncryptionKey is a base64-encoded 32-byte AES key. Empty disables encryption.
	EncryptionKey string `yaml:"encryption_key,omitempty" toml:"encryption_key,omitempty"`
	// KeepAlive is a cron expression for proactive refresh while serving.
	KeepAlive string `yaml:"keep_alive" toml:"keep_alive"`
}

// TimeoutConfig holds the independent timeouts.
type TimeoutConfig struct {
	Request   time.Duration `yaml:"request" toml:"request"`
	Aggregate time.Duration `yaml:"aggregate" toml:"aggregate"`
	// FetchBuffer widens the event fetch window on both sides of the day.
	FetchBuffer time.Duration `yaml:"fetch_buffer" toml:"fetch_buffer"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone used when a caller does not pass one.
	Timezone      string        `yaml:"timezone" toml:"timezone"`
	WorkStart     string        `yaml:"work_start" toml:"work_start"`
	WorkEnd       string        `yaml:"work_end" toml:"work_end"`
	MinFreeWindow time.Duration `yaml:"min_free_window" toml:"min_free_window"`

	Calendars []string    `yaml:"calendars" toml:"calendars"`
	TaskLists []string    `yaml:"task_lists" toml:"task_lists"`
	ICS       []ICSSource `yaml:"ics" toml:"ics"`

	Retry      RetryConfig      `yaml:"retry" toml:"retry"`
	Quota      QuotaConfig      `yaml:"quota" toml:"quota"`
	Credential CredentialConfig `yaml:"credential" toml:"credential"`
	Timeouts   TimeoutConfig    `yaml:"timeouts" toml:"timeouts"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timezone:      "UTC",
		WorkStart:     "09:00",
		WorkEnd:       "17:00",
		MinFreeWindow: 15 * time.Minute,
		Calendars:     []string{"primary"},
		TaskLists:     []string{"@default"},
		ICS:           []ICSSource{},
		Retry: RetryConfig{
			MaxAttempts:       5,
			MaxNetworkRetries: 3,
			BaseBackoff:       500 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			JitterFraction:    0.2,
		},
		Quota: QuotaConfig{
			Window:      time.Minute,
			MaxRequests: 240,
			MaxWait:     30 * time.Second,
		},
		Credential: CredentialConfig{
			Account:        "default",
			SafetyMargin:   5 * time.Minute,
			RefreshTimeout: 15 * time.Second,
			Store:          StoreFile,
			KeepAlive:      "*/20 * * * *",
		},
		Timeouts: TimeoutConfig{
			Request:     30 * time.Second,
			Aggregate:   45 * time.Second,
			FetchBuffer: 6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultDataDir returns the directory holding credentials and caches.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Normalize fills zero values with defaults so partially filled files still
// behave correctly.
func (c *Config) Normalize() {
	d := Default()

	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.WorkStart == "" {
		c.WorkStart = d.WorkStart
	}
	if c.WorkEnd == "" {
		c.WorkEnd = d.WorkEnd
	}
	if c.MinFreeWindow <= 0 {
		c.MinFreeWindow = d.MinFreeWindow
	}
	if len(c.Calendars) == 0 {
		c.Calendars = d.Calendars
	}
	if len(c.TaskLists) == 0 {
		c.TaskLists = d.TaskLists
	}
	if c.ICS == nil {
		c.ICS = []ICSSource{}
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.MaxNetworkRetries <= 0 {
		c.Retry.MaxNetworkRetries = d.Retry.MaxNetworkRetries
	}
	if c.Retry.BaseBackoff <= 0 {
		c.Retry.BaseBackoff = d.Retry.BaseBackoff
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = d.Retry.MaxBackoff
	}
	if c.Retry.JitterFraction < 0 {
		c.Retry.JitterFraction = 0
	}

	if c.Quota.Window <= 0 {
		c.Quota.Window = d.Quota.Window
	}
	if c.Quota.MaxRequests <= 0 {
		c.Quota.MaxRequests = d.Quota.MaxRequests
	}
	if c.Quota.MaxWait <= 0 {
		c.Quota.MaxWait = d.Quota.MaxWait
	}

	if c.Credential.Account == "" {
		c.Credential.Account = d.Credential.Account
	}
	if c.Credential.SafetyMargin <= 0 {
		c.Credential.SafetyMargin = d.Credential.SafetyMargin
	}
	if c.Credential.RefreshTimeout <= 0 {
		c.Credential.RefreshTimeout = d.Credential.RefreshTimeout
	}
	if c.Credential.Store == "" {
		c.Credential.Store = d.Credential.Store
	}
	if c.Credential.KeepAlive == "" {
		c.Credential.KeepAlive = d.Credential.KeepAlive
	}

	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = d.Timeouts.Request
	}
	if c.Timeouts.Aggregate <= 0 {
		c.Timeouts.Aggregate = d.Timeouts.Aggregate
	}
	if c.Timeouts.FetchBuffer < 0 {
		c.Timeouts.FetchBuffer = 0
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}

	start, err := time.Parse("15:04", c.WorkStart)
	if err != nil {
		errs = append(errs, fmt.Errorf("work_start %q must be HH:MM", c.WorkStart))
	}
	end, err2 := time.Parse("15:04", c.WorkEnd)
	if err2 != nil {
		errs = append(errs, fmt.Errorf("work_end %q must be HH:MM", c.WorkEnd))
	}
	if err == nil && err2 == nil && !start.Before(end) {
		errs = append(errs, fmt.Errorf("work_end %s must be after work_start %s", c.WorkEnd, c.WorkStart))
	}

	if c.Retry.BaseBackoff > c.Retry.MaxBackoff {
		errs = append(errs, fmt.Errorf("retry.base_backoff %s exceeds retry.max_backoff %s", c.Retry.BaseBackoff, c.Retry.MaxBackoff))
	}
	if c.Retry.JitterFraction > 1 {
		errs = append(errs, fmt.Errorf("retry.jitter_fraction must be between 0 and 1, got %g", c.Retry.JitterFraction))
	}
	if c.Credential.RefreshTimeout >= c.Credential.SafetyMargin {
		errs = append(errs, fmt.Errorf("credential.refresh_timeout %s must be shorter than credential.safety_margin %s",
			c.Credential.RefreshTimeout, c.Credential.SafetyMargin))
	}

	switch c.Credential.Store {
	case StoreFile, StoreSQLite, StoreMemory:
	case StoreValkey:
		if c.Credential.ValkeyAddr == "" {
			errs = append(errs, errors.New("credential.valkey_addr is required for the valkey store"))
		}
	default:
		errs = append(errs, fmt.Errorf("credential.store %q must be one of file, sqlite, valkey, memory", c.Credential.Store))
	}
	if c.Credential.EncryptionKey != "" {
		if _, err := c.EncryptionKey(); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for i, src := range c.ICS {
		if src.ID == "" || src.URL == "" {
			errs = append(errs, fmt.Errorf("ics[%d]: id and url are required", i))
			continue
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Errorf("ics[%d]: duplicate id %q", i, src.ID))
		}
		seen[src.ID] = true
	}

	return errors.Join(errs...)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// EncryptionKey decodes the credential encryption key. It returns nil when
// encryption is disabled.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Credential.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Credential.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credential.encryption_key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// CredentialPath returns the credential directory or database path, defaulting
// into the XDG data directory.
func (c *Config) CredentialPath() string {
	if c.Credential.Path != "" {
		return c.Credential.Path
	}
	if c.Credential.Store == StoreSQLite {
		return filepath.Join(DefaultDataDir(), "credentials.db")
	}
	return filepath.Join(DefaultDataDir(), "credentials")
}

// Load reads the file at path over the defaults, applies environment
// overrides and normalizes the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.Normalize()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func encode(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return []byte(buf.String()), nil
	case ".yaml", ".yml", "":
		return yaml.Marshal(cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// Save writes cfg to path atomically with 0600 permissions. The client
// secret and encryption key are written as given; keep the file private.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place. The parent directory is created with 0700 and the file ends up
// with 0600.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+appName+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
