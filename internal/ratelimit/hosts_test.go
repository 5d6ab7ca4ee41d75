package ratelimit

import (
	"testing"
	"time"
)

func TestSecondRequestWithinWindowRejected(t *testing.T) {
	gate := NewHostGate(50 * time.Millisecond)
	if !gate.Allow("example.com") {
		t.Fatal("first request should be permitted")
	}
	if gate.Allow("example.com") {
		t.Fatal("second request inside the window should be rejected")
	}

	time.Sleep(60 * time.Millisecond)
	if !gate.Allow("example.com") {
		t.Fatal("request after the window elapsed should be permitted")
	}
}

func TestHostsAreIndependent(t *testing.T) {
	gate := NewHostGate(time.Minute)
	if !gate.Allow("a.example.com") {
		t.Fatal("first host should be permitted")
	}
	if !gate.Allow("b.example.com") {
		t.Fatal("second host should not be affected by the first host's window")
	}
}

func TestHostnameCaseInsensitive(t *testing.T) {
	gate := NewHostGate(time.Minute)
	if !gate.Allow("Example.COM") {
		t.Fatal("first request should be permitted")
	}
	if gate.Allow("example.com") {
		t.Fatal("same host in different case should share the window")
	}
}

func TestElapsedEntriesEvicted(t *testing.T) {
	gate := NewHostGate(10 * time.Millisecond)
	gate.Allow("stale.example.com")
	time.Sleep(20 * time.Millisecond)

	// Checking any host sweeps elapsed reservations.
	gate.Allow("other.example.com")

	gate.mu.Lock()
	_, stale := gate.hosts["stale.example.com"]
	gate.mu.Unlock()
	if stale {
		t.Fatal("elapsed entry should have been evicted")
	}
}
