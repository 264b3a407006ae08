// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package config loads xlimport settings. Sources are applied in order,
// each overriding the last: built-in defaults, the YAML profile, .env files,
// then process environment. Command-line flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cipl-app/xlimport/internal/importsvc"
)

// Config holds every setting the commands read.
type Config struct {
	SiteURL   string `yaml:"site_url" env:"FRAPPE_URL"`
	APIKey    string `yaml:"api_key" env:"FRAPPE_API_KEY"`
	APISecret string `yaml:"api_secret" env:"FRAPPE_API_SECRET"`

	// Realtime sources. Redis is preferred when both are set.
	RedisURL     string `yaml:"redis_url" env:"FRAPPE_REDIS_URL"`
	RealtimeWS   string `yaml:"realtime_ws" env:"FRAPPE_REALTIME_WS"`
	RealtimeRoom string `yaml:"realtime_room" env:"FRAPPE_REALTIME_ROOM"`
	Namespace    string `yaml:"namespace" env:"FRAPPE_SITE_NAME"`

	DisplayDelay time.Duration `yaml:"display_delay" env:"XLIMPORT_DISPLAY_DELAY"`
	StallTimeout time.Duration `yaml:"stall_timeout" env:"XLIMPORT_STALL_TIMEOUT"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"XLIMPORT_HTTP_TIMEOUT"`
	PublicFiles  bool          `yaml:"public_files" env:"XLIMPORT_PUBLIC_FILES"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	LogDir   string `yaml:"log_dir" env:"XLIMPORT_LOG_DIR"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DisplayDelay: importsvc.DefaultDisplayDelay,
		StallTimeout: importsvc.DefaultStallTimeout,
		HTTPTimeout:  30 * time.Second,
		LogLevel:     "info",
		LogDir:       filepath.Join(".xlimport", "logs"),
	}
}

// DefaultPath is the profile file read when none is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".xlimport", "config.yaml")
}

// DefaultEnvFiles are loaded from the working directory when present.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Options controls where Load looks.
type Options struct {
	Path     string   // profile file; empty means DefaultPath
	EnvFiles []string // nil means DefaultEnvFiles
	Environ  func() map[string]string
}

// Load builds a Config from defaults, the profile file, .env files and the
// environment. A missing profile or .env file is not an error.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	files := opts.EnvFiles
	if files == nil {
		files = DefaultEnvFiles
	}
	if _, err := LoadEnv(files); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	parseOpts := env.Options{}
	if opts.Environ != nil {
		parseOpts.Environment = opts.Environ()
	}
	if err := env.ParseWithOptions(cfg, parseOpts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads the env files that exist, without overriding variables
// already set. It returns how many files were read.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if st, err := os.Stat(f); err == nil && !st.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Validate checks the settings a connected command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.SiteURL == "" {
		errs = append(errs, errors.New("site url is not set (use --site or FRAPPE_URL)"))
	} else if u, err := url.Parse(c.SiteURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("site url %q must be an http(s) url", c.SiteURL))
	}
	if (c.APIKey == "") != (c.APISecret == "") {
		errs = append(errs, errors.New("api key and api secret must be set together"))
	}
	if c.DisplayDelay < 0 {
		errs = append(errs, errors.New("display_delay must not be negative"))
	}
	if c.StallTimeout < 0 {
		errs = append(errs, errors.New("stall_timeout must not be negative (0 disables it)"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout must be positive"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the logrus level, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// RealtimeConfigured reports whether any progress source is set.
func (c *Config) RealtimeConfigured() bool {
	return c.RedisURL != "" || c.RealtimeWS != ""
}
