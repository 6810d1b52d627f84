// Package config loads tool configuration from an optional YAML file with
// environment variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Env variable names. A .env file in the working directory is loaded by
// the root command before these are read.
const (
	EnvEmail    = "BSGET_EMAIL"
	EnvPassword = "BSGET_PASSWORD"
)

// Config holds everything the commands need beyond their flags.
type Config struct {
	// Email and Password are the bSmart account credentials. Never written
	// back to disk by this tool.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// OutputDir is where finished PDFs land.
	OutputDir string `yaml:"output_dir"`

	// Workers bounds concurrent page fetches in parallel mode.
	Workers int `yaml:"workers"`

	// Staging selects where fetched pages wait for assembly: "memory" or
	// "disk".
	Staging string `yaml:"staging"`

	// Base URL overrides, mainly for testing against a local fixture
	// server.
	WebBaseURL    string `yaml:"web_base_url"`
	ReaderBaseURL string `yaml:"reader_base_url"`
	ImageBaseURL  string `yaml:"image_base_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDir: "downloads",
		Workers:   10,
		Staging:   "memory",
	}
}

// Load reads the YAML file at path (if path is "" the default location is
// tried, and its absence is not an error) and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = defaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case explicit:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if v := os.Getenv(EnvEmail); v != "" {
		cfg.Email = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Password = v
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	switch cfg.Staging {
	case "memory", "disk":
	case "":
		cfg.Staging = "memory"
	default:
		return cfg, fmt.Errorf("invalid staging mode %q (want memory or disk)", cfg.Staging)
	}
	return cfg, nil
}

// defaultPath resolves ~/.config/bsget/config.yaml, expanding the home
// directory the way the standard tools do.
func defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bsget", "config.yaml")
}

// Redacted returns the config with secrets masked, for debug logging.
func (c Config) Redacted() Config {
	out := c
	if out.Password != "" {
		out.Password = strings.Repeat("*", 8)
	}
	return out
}
