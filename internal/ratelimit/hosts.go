// Package ratelimit gates new requests per destination hostname. The gate
// never blocks or queues: a request either claims the host's window now or
// is rejected and must be retried by the caller later.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the window reserved per host after a permitted
// request. Policy, not protocol; override it via NewHostGate.
const DefaultInterval = 3 * time.Second

type hostEntry struct {
	limiter *rate.Limiter
	// reservedUntil is the instant the host's window opens again; entries
	// whose instant has elapsed are evicted lazily on the next check.
	reservedUntil time.Time
}

// HostGate is the process-wide per-hostname frequency gate. Safe for
// concurrent use; the check-and-reserve is one atomic operation.
type HostGate struct {
	interval time.Duration

	mu    sync.Mutex
	hosts map[string]*hostEntry
}

// NewHostGate builds a gate with the given reservation interval; zero or
// negative selects DefaultInterval.
func NewHostGate(interval time.Duration) *HostGate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &HostGate{
		interval: interval,
		hosts:    make(map[string]*hostEntry),
	}
}

// Allow reports whether a request to host is currently permitted and, if
// so, reserves the next window for it. Elapsed entries for other hosts
// are evicted as a side effect; there is no background sweep.
func (g *HostGate) Allow(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for h, e := range g.hosts {
		if now.After(e.reservedUntil) {
			delete(g.hosts, h)
		}
	}

	e, ok := g.hosts[host]
	if !ok {
		e = &hostEntry{limiter: rate.NewLimiter(rate.Every(g.interval), 1)}
		g.hosts[host] = e
	}
	if !e.limiter.Allow() {
		return false
	}
	e.reservedUntil = now.Add(g.interval)
	return true
}

// Interval returns the configured reservation window.
func (g *HostGate) Interval() time.Duration {
	return g.interval
}
