package main

import (
	"strings"
	"testing"
	"time"

	"github.com/justlep/scraper/internal/config"
)

func TestMergeConfigDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(`
fetch:
  user_agent: "configured/1.0"
  timeout: 4s
  max_redirects: 3
  max_bytes: 2048
  proxy_url: "http://proxy.local:3128"
rate_limit:
  interval: 750ms
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	base := settings{
		userAgent: "",
		timeout:   10 * time.Second,
		redirects: 1,
		maxBytes:  0,
	}

	t.Run("config fills unset flags", func(t *testing.T) {
		got := mergeConfigDefaults(base, cfg, map[string]bool{})
		if got.userAgent != "configured/1.0" {
			t.Errorf("userAgent = %q", got.userAgent)
		}
		if got.timeout != 4*time.Second {
			t.Errorf("timeout = %s", got.timeout)
		}
		if got.redirects != 3 {
			t.Errorf("redirects = %d", got.redirects)
		}
		if got.maxBytes != 2048 {
			t.Errorf("maxBytes = %d", got.maxBytes)
		}
		if got.rateInterval != 750*time.Millisecond {
			t.Errorf("rateInterval = %s", got.rateInterval)
		}
		if got.proxyURL != "http://proxy.local:3128" {
			t.Errorf("proxyURL = %q", got.proxyURL)
		}
	})

	t.Run("explicit flags win over config", func(t *testing.T) {
		explicit := map[string]bool{"timeout": true, "redirects": true}
		in := base
		in.timeout = 2 * time.Second
		in.redirects = 4

		got := mergeConfigDefaults(in, cfg, explicit)
		if got.timeout != 2*time.Second {
			t.Errorf("explicit timeout overridden, got %s", got.timeout)
		}
		if got.redirects != 4 {
			t.Errorf("explicit redirects overridden, got %d", got.redirects)
		}
		if got.userAgent != "configured/1.0" {
			t.Errorf("unset userAgent should come from config, got %q", got.userAgent)
		}
	})
}
