// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/genstudio/internal/prefs"
	"github.com/jeranaias/genstudio/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete genstudio configuration.
type Config struct {
	Bridge      BridgeConfig      `toml:"bridge" json:"bridge"`
	Session     SessionConfig     `toml:"session" json:"session"`
	Attachments AttachmentsConfig `toml:"attachments" json:"attachments"`
	Preferences PreferencesConfig `toml:"preferences" json:"preferences"`
	Assets      AssetsConfig      `toml:"assets" json:"assets"`
}

// BridgeConfig contains the backend bridge connection settings.
type BridgeConfig struct {
	// URL is the bridge base URL
	URL string `toml:"url" json:"url"`
	// Token is sent as a bearer token when set
	Token string `toml:"token" json:"token"`
	// TimeoutSecs bounds a single generation request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RequestsPerSecond and Burst configure the shared client rate limiter
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
}

// SessionConfig contains chat session behavior.
type SessionConfig struct {
	// PollIntervalMS is the progress polling period in milliseconds
	PollIntervalMS int `toml:"poll_interval_ms" json:"poll_interval_ms"`
	// DefaultAspectRatio is used when a brand has no stored preference
	DefaultAspectRatio string `toml:"default_aspect_ratio" json:"default_aspect_ratio"`
	// DefaultGenerationMode is used when a brand has no stored preference
	DefaultGenerationMode string `toml:"default_generation_mode" json:"default_generation_mode"`
}

// AttachmentsConfig contains attachment validation limits.
type AttachmentsConfig struct {
	AllowedExtensions []string `toml:"allowed_extensions" json:"allowed_extensions"`
	MaxFileBytes      int64    `toml:"max_file_bytes" json:"max_file_bytes"`
}

// PreferencesConfig selects where per-brand preferences are kept.
type PreferencesConfig struct {
	// Backend is one of "memory", "file", "sqlite"
	Backend string `toml:"backend" json:"backend"`
	// Path is the store location (empty = default under the config dir)
	Path string `toml:"path" json:"path"`
}

// AssetsConfig points at the MinIO bucket backing the asset library.
// Asset previews are disabled while Endpoint is empty.
type AssetsConfig struct {
	Endpoint        string `toml:"endpoint" json:"endpoint"`
	AccessKey       string `toml:"access_key" json:"access_key"`
	SecretKey       string `toml:"secret_key" json:"secret_key"`
	Bucket          string `toml:"bucket" json:"bucket"`
	UseSSL          bool   `toml:"use_ssl" json:"use_ssl"`
	ThumbnailPrefix string `toml:"thumbnail_prefix" json:"thumbnail_prefix"`
}

// Preference backends.
const (
	PrefsMemory = "memory"
	PrefsFile   = "file"
	PrefsSQLite = "sqlite"
)

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			URL:               "http://localhost:8787",
			TimeoutSecs:       300,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Session: SessionConfig{
			PollIntervalMS:        500,
			DefaultAspectRatio:    prefs.DefaultAspectRatio,
			DefaultGenerationMode: prefs.DefaultGenerationMode,
		},
		Attachments: AttachmentsConfig{
			AllowedExtensions: []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".pdf", ".txt", ".md", ".csv", ".json"},
			MaxFileBytes:      20 << 20,
		},
		Preferences: PreferencesConfig{
			Backend: PrefsFile,
		},
		Assets: AssetsConfig{
			UseSSL:          true,
			ThumbnailPrefix: "thumbnails/",
		},
	}
}

// PollInterval returns the poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Session.PollIntervalMS) * time.Millisecond
}

// BridgeTimeout returns the generation timeout as a duration.
func (c *Config) BridgeTimeout() time.Duration {
	return time.Duration(c.Bridge.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the genstudio configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".genstudio"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// PreferencesPath returns the configured store path, or the default for the
// backend under the config directory.
func (c *Config) PreferencesPath() (string, error) {
	if c.Preferences.Path != "" {
		return c.Preferences.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Preferences.Backend == PrefsSQLite {
		return filepath.Join(dir, "preferences.db"), nil
	}
	return filepath.Join(dir, "preferences.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it may hold
// the bridge token and asset keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.genstudio/config.toml, falling back to defaults when it does
// not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Bridge.URL == "" {
		c.Bridge.URL = d.Bridge.URL
	}
	if c.Bridge.TimeoutSecs == 0 {
		c.Bridge.TimeoutSecs = d.Bridge.TimeoutSecs
	}
	if c.Bridge.RequestsPerSecond == 0 {
		c.Bridge.RequestsPerSecond = d.Bridge.RequestsPerSecond
	}
	if c.Bridge.Burst == 0 {
		c.Bridge.Burst = d.Bridge.Burst
	}

	if c.Session.PollIntervalMS == 0 {
		c.Session.PollIntervalMS = d.Session.PollIntervalMS
	}
	if c.Session.DefaultAspectRatio == "" {
		c.Session.DefaultAspectRatio = d.Session.DefaultAspectRatio
	}
	if c.Session.DefaultGenerationMode == "" {
		c.Session.DefaultGenerationMode = d.Session.DefaultGenerationMode
	}

	if c.Attachments.AllowedExtensions == nil {
		c.Attachments.AllowedExtensions = d.Attachments.AllowedExtensions
	}
	if c.Attachments.MaxFileBytes == 0 {
		c.Attachments.MaxFileBytes = d.Attachments.MaxFileBytes
	}

	if c.Preferences.Backend == "" {
		c.Preferences.Backend = d.Preferences.Backend
	}
	if c.Assets.ThumbnailPrefix == "" {
		c.Assets.ThumbnailPrefix = d.Assets.ThumbnailPrefix
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# genstudio configuration file\n")
	buf.WriteString("# Generated by genstudio - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors listing every
// problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Bridge
	if u, err := url.Parse(c.Bridge.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		add("bridge.url", "invalid URL '%s', must be http(s)://host[:port]", c.Bridge.URL)
	}
	if c.Bridge.TimeoutSecs < 1 || c.Bridge.TimeoutSecs > 3600 {
		add("bridge.timeout_secs", "must be between 1 and 3600, got %d", c.Bridge.TimeoutSecs)
	}
	if c.Bridge.RequestsPerSecond <= 0 {
		add("bridge.requests_per_second", "must be positive, got %g", c.Bridge.RequestsPerSecond)
	}
	if c.Bridge.Burst < 1 {
		add("bridge.burst", "must be at least 1, got %d", c.Bridge.Burst)
	}

	// Session
	if c.Session.PollIntervalMS < 50 || c.Session.PollIntervalMS > 60000 {
		add("session.poll_interval_ms", "must be between 50 and 60000, got %d", c.Session.PollIntervalMS)
	}
	if !prefs.ValidAspectRatio(c.Session.DefaultAspectRatio) {
		add("session.default_aspect_ratio", "invalid ratio '%s', expected W:H", c.Session.DefaultAspectRatio)
	}
	if strings.TrimSpace(c.Session.DefaultGenerationMode) == "" {
		add("session.default_generation_mode", "must not be empty")
	}

	// Attachments
	for _, ext := range c.Attachments.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			add("attachments.allowed_extensions", "invalid extension '%s', must start with '.'", ext)
		}
	}
	if c.Attachments.MaxFileBytes <= 0 {
		add("attachments.max_file_bytes", "must be positive, got %d", c.Attachments.MaxFileBytes)
	}

	// Preferences
	switch c.Preferences.Backend {
	case PrefsMemory, PrefsFile, PrefsSQLite:
	default:
		add("preferences.backend", "invalid backend '%s', must be one of: memory, file, sqlite", c.Preferences.Backend)
	}

	// Assets
	if c.Assets.Endpoint != "" && c.Assets.Bucket == "" {
		add("assets.bucket", "required when assets.endpoint is set")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies GENSTUDIO_* environment variables:
//   - GENSTUDIO_BRIDGE_URL: overrides bridge.url
//   - GENSTUDIO_BRIDGE_TOKEN: overrides bridge.token
//   - GENSTUDIO_POLL_INTERVAL_MS: overrides session.poll_interval_ms
//   - GENSTUDIO_PREFS_BACKEND: overrides preferences.backend
//   - GENSTUDIO_PREFS_PATH: overrides preferences.path
//   - GENSTUDIO_ASSETS_ENDPOINT, _ACCESS_KEY, _SECRET_KEY, _BUCKET, _USE_SSL
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GENSTUDIO_BRIDGE_URL"); v != "" {
		c.Bridge.URL = v
	}
	if v := os.Getenv("GENSTUDIO_BRIDGE_TOKEN"); v != "" {
		c.Bridge.Token = v
	}
	if v := os.Getenv("GENSTUDIO_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Session.PollIntervalMS = ms
		}
	}
	if v := os.Getenv("GENSTUDIO_PREFS_BACKEND"); v != "" {
		c.Preferences.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("GENSTUDIO_PREFS_PATH"); v != "" {
		c.Preferences.Path = v
	}

	if v := os.Getenv("GENSTUDIO_ASSETS_ENDPOINT"); v != "" {
		c.Assets.Endpoint = v
	}
	if v := os.Getenv("GENSTUDIO_ASSETS_ACCESS_KEY"); v != "" {
		c.Assets.AccessKey = v
	}
	if v := os.Getenv("GENSTUDIO_ASSETS_SECRET_KEY"); v != "" {
		c.Assets.SecretKey = v
	}
	if v := os.Getenv("GENSTUDIO_ASSETS_BUCKET"); v != "" {
		c.Assets.Bucket = v
	}
	if v := os.Getenv("GENSTUDIO_ASSETS_USE_SSL"); v != "" {
		c.Assets.UseSSL = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// GET HELPER (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "session.poll_interval_ms").
// Secrets are returned masked.
func (c *Config) Get(key string) (interface{}, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if isSecret(key) && field.Kind() == reflect.String && field.String() != "" {
				return "********", nil
			}
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func isSecret(key string) bool {
	switch key {
	case "bridge.token", "assets.secret_key", "assets.access_key":
		return true
	}
	return false
}

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Attachments.AllowedExtensions = append([]string(nil), c.Attachments.AllowedExtensions...)
	return &cp
}
