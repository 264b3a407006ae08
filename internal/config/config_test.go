// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv() map[string]string { return map[string]string{} }

func TestLoadDefaultsWhenNothingConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(Options{Path: filepath.Join(dir, "missing.yaml"), EnvFiles: []string{}, Environ: noEnv})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
site_url: https://erp.example.com/
api_key: abc
api_secret: def
redis_url: redis://localhost:13000/0
display_delay: 5s
stall_timeout: 0s
log_level: debug
`)

	cfg, err := Load(Options{Path: path, EnvFiles: []string{}, Environ: func() map[string]string {
		return map[string]string{
			"FRAPPE_URL":             "https://staging.example.com",
			"XLIMPORT_STALL_TIMEOUT": "90s",
		}
	}})
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.SiteURL)
	assert.Equal(t, "abc", cfg.APIKey)
	assert.Equal(t, "redis://localhost:13000/0", cfg.RedisURL)
	assert.Equal(t, 5*time.Second, cfg.DisplayDelay)
	assert.Equal(t, 90*time.Second, cfg.StallTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout, "unset keys keep their default")
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
}

func TestLoadYAMLCanDisableStallTimeout(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "stall_timeout: 0s\n")
	cfg, err := Load(Options{Path: path, EnvFiles: []string{}, Environ: noEnv})
	require.NoError(t, err)
	assert.Zero(t, cfg.StallTimeout)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FRAPPE_URL", "")
	require.NoError(t, os.Unsetenv("FRAPPE_URL"))
	t.Setenv("FRAPPE_API_KEY", "from-process")

	envFile := writeFile(t, dir, ".env", "FRAPPE_URL=http://localhost:8000\nFRAPPE_API_KEY=from-file\nFRAPPE_API_SECRET=s3cret\n")
	t.Cleanup(func() {
		os.Unsetenv("FRAPPE_API_SECRET")
		os.Unsetenv("FRAPPE_URL")
	})

	cfg, err := Load(Options{Path: filepath.Join(dir, "none.yaml"), EnvFiles: []string{envFile, filepath.Join(dir, ".env.local")}})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.SiteURL)
	assert.Equal(t, "from-process", cfg.APIKey, "process environment wins over .env")
	assert.Equal(t, "s3cret", cfg.APISecret)
}

func TestLoadRejectsBadInput(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "site_url: [unclosed\n")
	_, err := Load(Options{Path: path, EnvFiles: []string{}, Environ: noEnv})
	assert.Error(t, err)

	_, err = Load(Options{Path: filepath.Join(t.TempDir(), "none.yaml"), EnvFiles: []string{}, Environ: func() map[string]string {
		return map[string]string{"XLIMPORT_DISPLAY_DELAY": "soon"}
	}})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.SiteURL = "https://erp.example.com"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no site", mutate: func(c *Config) { c.SiteURL = "" }, wantErr: "site url is not set"},
		{name: "bad scheme", mutate: func(c *Config) { c.SiteURL = "ftp://erp" }, wantErr: "must be an http(s) url"},
		{name: "half credentials", mutate: func(c *Config) { c.APIKey = "k" }, wantErr: "must be set together"},
		{name: "negative stall", mutate: func(c *Config) { c.StallTimeout = -time.Second }, wantErr: "stall_timeout"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRealtimeConfigured(t *testing.T) {
	c := Default()
	assert.False(t, c.RealtimeConfigured())
	c.RealtimeWS = "wss://erp.example.com/socket"
	assert.True(t, c.RealtimeConfigured())
}
