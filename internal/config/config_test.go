// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 300*time.Second, cfg.BridgeTimeout())
	assert.Equal(t, PrefsFile, cfg.Preferences.Backend)
}

func TestLoadFromPath_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
[bridge]
url = "https://bridge.example.com"

[session]
poll_interval_ms = 250
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "https://bridge.example.com", cfg.Bridge.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, Default().Bridge.TimeoutSecs, cfg.Bridge.TimeoutSecs)
	assert.Equal(t, Default().Session.DefaultAspectRatio, cfg.Session.DefaultAspectRatio)
	assert.Equal(t, Default().Attachments.AllowedExtensions, cfg.Attachments.AllowedExtensions)
}

func TestLoadFromPath_Errors(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = LoadFromPath(writeConfig(t, "[bridge\nurl = "))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Bridge.URL = "ftp://x" }, "bridge.url"},
		{"no host", func(c *Config) { c.Bridge.URL = "http://" }, "bridge.url"},
		{"timeout", func(c *Config) { c.Bridge.TimeoutSecs = 0 }, "bridge.timeout_secs"},
		{"rate", func(c *Config) { c.Bridge.RequestsPerSecond = -1 }, "bridge.requests_per_second"},
		{"burst", func(c *Config) { c.Bridge.Burst = 0 }, "bridge.burst"},
		{"poll too fast", func(c *Config) { c.Session.PollIntervalMS = 10 }, "session.poll_interval_ms"},
		{"ratio", func(c *Config) { c.Session.DefaultAspectRatio = "wide" }, "session.default_aspect_ratio"},
		{"mode", func(c *Config) { c.Session.DefaultGenerationMode = " " }, "session.default_generation_mode"},
		{"extension", func(c *Config) { c.Attachments.AllowedExtensions = []string{"png"} }, "attachments.allowed_extensions"},
		{"max bytes", func(c *Config) { c.Attachments.MaxFileBytes = 0 }, "attachments.max_file_bytes"},
		{"prefs backend", func(c *Config) { c.Preferences.Backend = "redis" }, "preferences.backend"},
		{"bucket", func(c *Config) { c.Assets.Endpoint = "minio:9000" }, "assets.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			if len(verrs) != 1 || verrs[0].Field != tt.field {
				t.Errorf("Validate() = %v, want single error on %s", verrs, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Burst = 0
	cfg.Preferences.Backend = "nope"

	var verrs ValidateErrors
	require.ErrorAs(t, cfg.Validate(), &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, verrs.Error(), "bridge.burst")
	assert.Contains(t, verrs.Error(), "preferences.backend")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GENSTUDIO_BRIDGE_URL", "http://10.0.0.5:9000")
	t.Setenv("GENSTUDIO_BRIDGE_TOKEN", "secret")
	t.Setenv("GENSTUDIO_POLL_INTERVAL_MS", "750")
	t.Setenv("GENSTUDIO_PREFS_BACKEND", "SQLite")
	t.Setenv("GENSTUDIO_ASSETS_ENDPOINT", "minio:9000")
	t.Setenv("GENSTUDIO_ASSETS_BUCKET", "brand-assets")
	t.Setenv("GENSTUDIO_ASSETS_USE_SSL", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://10.0.0.5:9000", cfg.Bridge.URL)
	assert.Equal(t, "secret", cfg.Bridge.Token)
	assert.Equal(t, 750, cfg.Session.PollIntervalMS)
	assert.Equal(t, PrefsSQLite, cfg.Preferences.Backend)
	assert.Equal(t, "minio:9000", cfg.Assets.Endpoint)
	assert.Equal(t, "brand-assets", cfg.Assets.Bucket)
	assert.False(t, cfg.Assets.UseSSL)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides_IgnoresBadInterval(t *testing.T) {
	t.Setenv("GENSTUDIO_POLL_INTERVAL_MS", "soon")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 500, cfg.Session.PollIntervalMS)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Bridge.Token = "tok"
	cfg.Session.DefaultAspectRatio = "16:9"
	cfg.Preferences.Backend = PrefsSQLite

	require.NoError(t, SaveTOML(cfg, path))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromPath_TightensPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	path := writeConfig(t, "[bridge]\nurl = \"http://localhost:1\"\n")
	require.NoError(t, os.Chmod(path, 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestPreferencesPath(t *testing.T) {
	cfg := Default()
	cfg.Preferences.Path = "/tmp/p.json"
	p, err := cfg.PreferencesPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/p.json", p)

	cfg.Preferences.Path = ""
	cfg.Preferences.Backend = PrefsSQLite
	p, err = cfg.PreferencesPath()
	require.NoError(t, err)
	assert.Equal(t, "preferences.db", filepath.Base(p))
}

func TestGet(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Token = "abc"

	tests := []struct {
		key     string
		want    interface{}
		wantErr bool
	}{
		{"session.poll_interval_ms", 500, false},
		{"bridge.url", "http://localhost:8787", false},
		{"bridge.token", "********", false},
		{"preferences.backend", PrefsFile, false},
		{"session.nope", nil, true},
		{"bridge.url.host", nil, true},
		{"", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cfg.Get(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Get(%q) expected error", tt.key)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "bridge.url")
	assert.Contains(t, keys, "session.poll_interval_ms")
	assert.Contains(t, keys, "assets.thumbnail_prefix")
	for _, k := range keys {
		_, err := Default().Get(k)
		assert.NoError(t, err, k)
	}
}

func TestClone_Independent(t *testing.T) {
	cfg := Default()
	cp := cfg.Clone()
	cp.Attachments.AllowedExtensions[0] = ".bmp"
	assert.Equal(t, ".png", cfg.Attachments.AllowedExtensions[0])
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[session]\npoll_interval_ms = 500\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[session]\npoll_interval_ms = 900\n"), 0600))

	select {
	case cfg := <-got:
		assert.Equal(t, 900, cfg.Session.PollIntervalMS)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcher_SkipsInvalidFile(t *testing.T) {
	path := writeConfig(t, "[session]\npoll_interval_ms = 500\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[session]\npoll_interval_ms = 1\n"), 0600))

	select {
	case cfg := <-got:
		t.Fatalf("invalid config delivered: %+v", cfg.Session)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, "[session]\npoll_interval_ms = 500\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	defer w.Close()

	sibling := filepath.Join(filepath.Dir(path), "other.toml")
	require.NoError(t, os.WriteFile(sibling, []byte("x = 1\n"), 0600))

	select {
	case <-got:
		t.Fatal("sibling write triggered a reload")
	case <-time.After(500 * time.Millisecond):
	}
}
