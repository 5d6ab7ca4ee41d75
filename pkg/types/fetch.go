package types

import (
	"net/url"
	"time"
)

// FetchRequest carries the resolved, validated parameters for one logical
// fetch, including every redirect hop of its chain. Values are copied with
// an updated URL and hop count per hop, never shared between fetches.
type FetchRequest struct {
	URL *url.URL

	StartToken    string
	StartIncluded bool
	StopToken     string
	StopIncluded  bool

	// MaxBytes is the output budget in bytes. It is always resolved to a
	// positive value before fetching (0 in the options layer selects the
	// implementation default).
	MaxBytes int

	// ChunkBuffer is the minimum number of pending bytes to accumulate
	// before scanning for tokens.
	ChunkBuffer int

	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Headers      map[string]string

	// RateLimited gates the original request of the chain through the
	// per-host limiter. Redirect hops are never gated.
	RateLimited bool
}

// FetchResult is the outcome of a completed fetch before post-processing.
type FetchResult struct {
	Body      string
	FinalURL  *url.URL
	FetchedAt time.Time
}

// Timings records per-phase durations of a fetch pipeline. Phases are
// marked independently with paired start/stop calls; unset phases stay zero.
type Timings struct {
	Load      time.Duration
	Transform time.Duration
	ToDOM     time.Duration
	Scrape    time.Duration

	loadStart      time.Time
	transformStart time.Time
	toDOMStart     time.Time
	scrapeStart    time.Time
}

// StartLoad marks the beginning of the load phase.
func (t *Timings) StartLoad() { t.loadStart = time.Now() }

// StopLoad closes the load phase and records its duration.
func (t *Timings) StopLoad() { t.Load = sinceMark(t.loadStart) }

// StartTransform marks the beginning of the post-process phase.
func (t *Timings) StartTransform() { t.transformStart = time.Now() }

// StopTransform closes the post-process phase.
func (t *Timings) StopTransform() { t.Transform = sinceMark(t.transformStart) }

// StartToDOM marks the beginning of the tree-building phase.
func (t *Timings) StartToDOM() { t.toDOMStart = time.Now() }

// StopToDOM closes the tree-building phase.
func (t *Timings) StopToDOM() { t.ToDOM = sinceMark(t.toDOMStart) }

// StartScrape marks the beginning of the tree-querying phase.
func (t *Timings) StartScrape() { t.scrapeStart = time.Now() }

// StopScrape closes the tree-querying phase.
func (t *Timings) StopScrape() { t.Scrape = sinceMark(t.scrapeStart) }

// Snapshot returns a copy of the recorded durations without the
// in-progress marks.
func (t *Timings) Snapshot() Timings {
	return Timings{
		Load:      t.Load,
		Transform: t.Transform,
		ToDOM:     t.ToDOM,
		Scrape:    t.Scrape,
	}
}

func sinceMark(mark time.Time) time.Duration {
	if mark.IsZero() {
		return 0
	}
	return time.Since(mark)
}
