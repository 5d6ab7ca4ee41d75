package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("{}\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr)
	}
	if got := cfg.RateLimit.Interval.Duration; got != 3*time.Second {
		t.Errorf("default rate interval = %s", got)
	}
	if cfg.Fetch.MaxRedirects != 1 {
		t.Errorf("default max_redirects = %d", cfg.Fetch.MaxRedirects)
	}
	if cfg.Robots.Respect {
		t.Error("robots.respect should default to off")
	}
}

func TestLoadFromReaderOverrides(t *testing.T) {
	input := `
server:
  addr: ":9090"
fetch:
  user_agent: "unit-test/1.0"
  timeout: 3s
  max_redirects: 4
rate_limit:
  interval: 500ms
robots:
  respect: true
  user_agent: "unit-test/1.0"
  overrides: ["  Example.COM ", "example.com", "other.net"]
`
	cfg, err := LoadFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if got := cfg.Fetch.Timeout.Duration; got != 3*time.Second {
		t.Errorf("timeout = %s", got)
	}
	if got := cfg.RateLimit.Interval.Duration; got != 500*time.Millisecond {
		t.Errorf("interval = %s", got)
	}
	want := []string{"example.com", "other.net"}
	if len(cfg.Robots.Overrides) != len(want) {
		t.Fatalf("overrides = %v", cfg.Robots.Overrides)
	}
	for i, host := range want {
		if cfg.Robots.Overrides[i] != host {
			t.Errorf("overrides[%d] = %q, want %q", i, cfg.Robots.Overrides[i], host)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"timeout below floor", func(c *Config) { c.Fetch.Timeout = DurationFrom(time.Millisecond) }},
		{"redirects too high", func(c *Config) { c.Fetch.MaxRedirects = 5 }},
		{"redirects zero", func(c *Config) { c.Fetch.MaxRedirects = 0 }},
		{"negative chunk buffer", func(c *Config) { c.Fetch.ChunkBuffer = -1 }},
		{"zero rate interval", func(c *Config) { c.RateLimit.Interval = Duration{} }},
		{"history without dsn", func(c *Config) { c.History.Enabled = true; c.History.DSN = "" }},
		{"rendering without sessions", func(c *Config) { c.Rendering.Enabled = true; c.Rendering.ConcurrentSessions = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_section:\n  x: 1\n"))
	if err == nil {
		t.Fatal("unknown top-level keys should be rejected")
	}
}
