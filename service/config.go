// Package service exposes accessibility scans over HTTP and MCP: accept a
// URL, run the axe orchestrator against it in a managed browser, persist
// the report, and serve it back.
package service

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	DBPath    string          `yaml:"db_path"`
	AxeSource string          `yaml:"axe_source"` // path to axe.min.js
	APIKey    APIKeyConfig    `yaml:"api_key"`
	Browser   BrowserConfig   `yaml:"browser"`
	Scan      ScanConfig      `yaml:"scan"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// APIKeyConfig controls bearer-token authentication. When Hash is empty the
// API is open, which is only acceptable on a loopback listen address.
type APIKeyConfig struct {
	Hash string `yaml:"hash"` // bcrypt hash of the accepted key
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Headful         bool          `yaml:"headful"`
	Stealth         bool          `yaml:"stealth"`
	XvfbDisplay     string        `yaml:"xvfb_display"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// ScanConfig controls scan execution.
type ScanConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	AllowPrivate  bool          `yaml:"allow_private"` // permit scans of private-network targets
	DisabledRules []string      `yaml:"disabled_rules"`
}

// RateLimitConfig throttles scan submission per client IP.
type RateLimitConfig struct {
	MaxRequests   int  `yaml:"max_requests"`
	WindowSeconds int  `yaml:"window_seconds"`
	Disabled      bool `yaml:"disabled"`
}

// MCPConfig controls the MCP tool transport.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("service: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("service: parse config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8750"
	}
	if c.DBPath == "" {
		c.DBPath = "axedrive.db"
	}
	if c.AxeSource == "" {
		c.AxeSource = "axe.min.js"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Scan.Timeout <= 0 {
		c.Scan.Timeout = 2 * time.Minute
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 10
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
}
