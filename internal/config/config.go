package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justlep/scraper/pkg/scraper"
)

// Config captures the full configuration of the fetch service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Fetch     FetchConfig     `yaml:"fetch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rendering RenderingConfig `yaml:"rendering"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig describes the HTTP listener of the API service.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// FetchConfig supplies defaults applied to every fetch that does not
// override them per request.
type FetchConfig struct {
	UserAgent    string            `yaml:"user_agent"`
	Headers      map[string]string `yaml:"headers"`
	ProxyURL     string            `yaml:"proxy_url"`
	Timeout      Duration          `yaml:"timeout"`
	MaxRedirects int               `yaml:"max_redirects"`
	MaxBytes     int               `yaml:"max_bytes"`
	ChunkBuffer  int               `yaml:"chunk_buffer"`
}

// RateLimitConfig controls the per-host request spacing.
type RateLimitConfig struct {
	Interval Duration `yaml:"interval"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// RenderingConfig controls optional JavaScript rendering.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// HistoryConfig describes the relational store that records completed
// fetches. History is off unless a DSN is configured.
type HistoryConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     DurationFrom(15 * time.Second),
			WriteTimeout:    DurationFrom(60 * time.Second),
			ShutdownTimeout: DurationFrom(10 * time.Second),
		},
		Fetch: FetchConfig{
			UserAgent:    scraper.DefaultUserAgent,
			Headers:      map[string]string{},
			Timeout:      DurationFrom(scraper.DefaultTimeout),
			MaxRedirects: 1,
		},
		RateLimit: RateLimitConfig{
			Interval: DurationFrom(3 * time.Second),
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: scraper.DefaultUserAgent,
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Timeout:            DurationFrom(15 * time.Second),
			ConcurrentSessions: 2,
		},
		History: HistoryConfig{
			Driver:      "postgres",
			AutoMigrate: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the service configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		return errors.New("fetch.user_agent must be set")
	}
	if d := c.Fetch.Timeout.Duration; d < scraper.MinTimeout {
		return fmt.Errorf("fetch.timeout must be >= %s (got %s)", scraper.MinTimeout, d)
	}
	if n := c.Fetch.MaxRedirects; n < 1 || n > 4 {
		return fmt.Errorf("fetch.max_redirects must be between 1 and 4 (got %d)", n)
	}
	if n := c.Fetch.MaxBytes; n < 0 || n > scraper.MaxByteBudget {
		return fmt.Errorf("fetch.max_bytes must be between 0 and %d (got %d)", scraper.MaxByteBudget, n)
	}
	if c.Fetch.ChunkBuffer < 0 {
		return fmt.Errorf("fetch.chunk_buffer must be >= 0 (got %d)", c.Fetch.ChunkBuffer)
	}
	if c.RateLimit.Interval.Duration <= 0 {
		return fmt.Errorf("rate_limit.interval must be > 0 (got %s)", c.RateLimit.Interval.Duration)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	if c.Rendering.Enabled {
		if c.Rendering.Timeout.Duration <= 0 {
			return errors.New("rendering.timeout must be > 0 when rendering is enabled")
		}
		if c.Rendering.ConcurrentSessions <= 0 {
			return fmt.Errorf("rendering.concurrent_sessions must be > 0 (got %d)", c.Rendering.ConcurrentSessions)
		}
	}
	if c.History.Enabled {
		if strings.TrimSpace(c.History.DSN) == "" {
			return errors.New("history.dsn must be set when history.enabled is true")
		}
		if strings.TrimSpace(c.History.Driver) == "" {
			return errors.New("history.driver must be set when history.enabled is true")
		}
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Fetch.ProxyURL = strings.TrimSpace(c.Fetch.ProxyURL)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.History.DSN = strings.TrimSpace(c.History.DSN)
	c.History.Driver = strings.TrimSpace(c.History.Driver)

	if c.Fetch.Headers == nil {
		c.Fetch.Headers = map[string]string{}
	}

	// Overrides are de-duplicated and normalised to lower case.
	if len(c.Robots.Overrides) > 0 {
		unique := make(map[string]struct{}, len(c.Robots.Overrides))
		cleaned := make([]string, 0, len(c.Robots.Overrides))
		for _, raw := range c.Robots.Overrides {
			host := strings.ToLower(strings.TrimSpace(raw))
			if host == "" {
				continue
			}
			if _, exists := unique[host]; exists {
				continue
			}
			unique[host] = struct{}{}
			cleaned = append(cleaned, host)
		}
		sort.Strings(cleaned)
		c.Robots.Overrides = cleaned
	}
}
