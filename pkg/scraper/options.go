package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/justlep/scraper/internal/urlcheck"
	"github.com/justlep/scraper/pkg/types"
)

const (
	// MaxByteBudget is the hard ceiling on output length.
	MaxByteBudget = 10_000_000
	// MinTimeout is the smallest accepted fetch timeout.
	MinTimeout = 2 * time.Millisecond

	// DefaultTimeout applies when no timeout is set explicitly.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent identifies this scraper unless overridden.
	DefaultUserAgent = "scraper-bot/1.0 (+https://github.com/justlep/scraper)"

	minRedirects = 1
	maxRedirects = 4
)

// Options configures one logical fetch. Built with NewOptions, refined
// through setters that validate eagerly, and owned by a single fetch
// including its redirect chain; never share one across concurrent fetches.
type Options struct {
	location *url.URL
	// finalURL is the URL the last completed fetch ended on after its
	// redirect chain; nil until a fetch succeeds.
	finalURL *url.URL

	startToken    string
	startIncluded bool
	stopToken     string
	stopIncluded  bool

	maxBytes        int
	chunkBufferSize int
	timeout         time.Duration
	redirects       int
	userAgent       string
	headers         map[string]string

	rateLimited bool
	rendered    bool
	compact     bool
	transform   func(string) string

	timings types.Timings
}

// NewOptions validates the target location and returns options populated
// with defaults: rate limiting on, one redirect hop, default timeout and
// user agent, full byte budget.
func NewOptions(location string) (*Options, error) {
	u, err := urlcheck.Validate(location)
	if err != nil {
		return nil, err
	}
	return &Options{
		location:    u,
		timeout:     DefaultTimeout,
		redirects:   minRedirects,
		userAgent:   DefaultUserAgent,
		rateLimited: true,
	}, nil
}

// SetLocation replaces the target, running the full URL acceptance check.
func (o *Options) SetLocation(location string) error {
	u, err := urlcheck.Validate(location)
	if err != nil {
		return err
	}
	o.location = u
	return nil
}

// Location returns the validated target URL.
func (o *Options) Location() *url.URL {
	return o.location
}

// FinalLocation returns the URL the last successful fetch ended on after
// following redirects; before any fetch it equals the target location.
func (o *Options) FinalLocation() *url.URL {
	if o.finalURL != nil {
		return o.finalURL
	}
	return o.location
}

// SetStartToken sets the marker the wanted fragment begins at and whether
// the marker itself is part of the output. An empty token means the
// fragment starts at the first byte.
func (o *Options) SetStartToken(token string, include bool) {
	o.startToken = token
	o.startIncluded = include
}

// SetStopToken sets the marker the wanted fragment ends at and whether
// the marker itself is part of the output. An empty token means the
// fragment runs to the byte budget or stream end.
func (o *Options) SetStopToken(token string, include bool) {
	o.stopToken = token
	o.stopIncluded = include
}

// SetMaxBytes bounds the output length. Zero selects the implementation
// default of 10 MB.
func (o *Options) SetMaxBytes(n int) error {
	if n < 0 || n > MaxByteBudget {
		return fmt.Errorf("max bytes must be within [0, %d], got %d", MaxByteBudget, n)
	}
	o.maxBytes = n
	return nil
}

// SetChunkBufferSize hints how many bytes to accumulate before scanning
// for tokens. The effective minimum always covers both token lengths.
func (o *Options) SetChunkBufferSize(n int) error {
	if n < 0 {
		return fmt.Errorf("chunk buffer size must be >= 0, got %d", n)
	}
	o.chunkBufferSize = n
	return nil
}

// SetTimeout bounds the duration of each HTTP exchange.
func (o *Options) SetTimeout(d time.Duration) error {
	if d < MinTimeout {
		return fmt.Errorf("timeout must be at least %s, got %s", MinTimeout, d)
	}
	o.timeout = d
	return nil
}

// SetMaxRedirects sets the redirect hop budget. Exceeding it during a
// fetch is a hard failure, never a silent cap.
func (o *Options) SetMaxRedirects(n int) error {
	if n < minRedirects || n > maxRedirects {
		return fmt.Errorf("max redirects must be within [%d, %d], got %d", minRedirects, maxRedirects, n)
	}
	o.redirects = n
	return nil
}

// SetUserAgent overrides the User-Agent header.
func (o *Options) SetUserAgent(ua string) {
	o.userAgent = ua
}

// SetHeaders parses a newline-separated "Name: value" block into request
// headers; see ParseHeaderBlock for the accepted names.
func (o *Options) SetHeaders(raw string) error {
	headers, err := ParseHeaderBlock(raw)
	if err != nil {
		return err
	}
	o.headers = headers
	return nil
}

// SetHeader adds or replaces a single request header. The name obeys the
// same whitelist as ParseHeaderBlock.
func (o *Options) SetHeader(name, value string) error {
	name = strings.TrimSpace(name)
	if err := checkHeaderName(name); err != nil {
		return fmt.Errorf("invalid header %q: %v", name, err)
	}
	if o.headers == nil {
		o.headers = make(map[string]string)
	}
	o.headers[name] = strings.TrimSpace(value)
	return nil
}

// SetRateLimited toggles the per-host frequency gate for this fetch.
func (o *Options) SetRateLimited(enabled bool) {
	o.rateLimited = enabled
}

// SetRendered requests a script-rendered DOM snapshot as the scan input
// instead of the raw response stream. Requires a configured renderer.
func (o *Options) SetRendered(enabled bool) {
	o.rendered = enabled
}

// SetCompact toggles whitespace compaction of the scanned fragment.
func (o *Options) SetCompact(enabled bool) {
	o.compact = enabled
}

// SetTransform installs a pure post-processing function applied after
// compaction.
func (o *Options) SetTransform(fn func(string) string) {
	o.transform = fn
}

// Timings returns a read-only snapshot of the phase durations recorded so
// far.
func (o *Options) Timings() types.Timings {
	return o.timings.Snapshot()
}

// StartScrape marks the beginning of caller-side tree querying; pair with
// StopScrape around goquery work to complete the timing record.
func (o *Options) StartScrape() { o.timings.StartScrape() }

// StopScrape closes the tree-querying phase.
func (o *Options) StopScrape() { o.timings.StopScrape() }

// request resolves the options into the value handed to the fetcher.
func (o *Options) request() types.FetchRequest {
	maxBytes := o.maxBytes
	if maxBytes == 0 {
		maxBytes = MaxByteBudget
	}
	return types.FetchRequest{
		URL:           o.location,
		StartToken:    o.startToken,
		StartIncluded: o.startIncluded,
		StopToken:     o.stopToken,
		StopIncluded:  o.stopIncluded,
		MaxBytes:      maxBytes,
		ChunkBuffer:   o.chunkBufferSize,
		Timeout:       o.timeout,
		MaxRedirects:  o.redirects,
		UserAgent:     o.userAgent,
		Headers:       o.headers,
		RateLimited:   o.rateLimited,
	}
}
