// Package fetcher binds HTTP exchanges to the stream scanner: it issues
// one exchange per scan, follows redirects under a hop budget, gates
// original requests through the per-host limiter, and tears the exchange
// down as soon as the scan is terminal.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/justlep/scraper/internal/ratelimit"
	"github.com/justlep/scraper/internal/robots"
	"github.com/justlep/scraper/internal/scanner"
	"github.com/justlep/scraper/internal/urlcheck"
	"github.com/justlep/scraper/pkg/types"
)

// Error kinds surfaced to callers. All of them are fatal for the fetch;
// the exchange is aborted before they propagate.
var (
	ErrRateLimited            = errors.New("request frequency restricted for host")
	ErrRedirectLimit          = errors.New("redirect limit exceeded")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrRobotsDenied           = errors.New("blocked by robots.txt")
)

// readBufferSize is the transport read granularity; scan windowing on top
// of it is controlled by the request's chunk buffer hint.
const readBufferSize = 32 * 1024

var redirectStatuses = map[int]struct{}{
	http.StatusMovedPermanently:  {},
	http.StatusFound:             {},
	http.StatusSeeOther:          {},
	http.StatusTemporaryRedirect: {},
	http.StatusPermanentRedirect: {},
}

var htmlContentTypes = map[string]struct{}{
	"text/html":             {},
	"application/xhtml+xml": {},
}

// Options configures a Client.
type Options struct {
	// RateInterval is the per-host reservation window; zero selects the
	// limiter default.
	RateInterval time.Duration
	ProxyURL     string
	Logger       *slog.Logger
	// Robots, when set, gates original requests through robots.txt.
	Robots *robots.Agent
}

// Client performs scanned fetches. One Client is shared across concurrent
// fetches; the host gate is its only cross-fetch mutable state.
type Client struct {
	client *http.Client
	gate   *ratelimit.HostGate
	robots *robots.Agent
	logger *slog.Logger
}

// NewClient constructs a fetch client.
func NewClient(opts Options) (*Client, error) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			// Redirects are followed manually so each hop re-runs URL
			// validation and binds a fresh scanner.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		gate:   ratelimit.NewHostGate(opts.RateInterval),
		robots: opts.Robots,
		logger: logger,
	}, nil
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt
// fetches).
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Gate exposes the per-host limiter shared by all fetches of this client.
func (c *Client) Gate() *ratelimit.HostGate {
	return c.gate
}

// SetRobots installs the optional robots.txt gate. Call before the first
// fetch; the agent is read without synchronization afterwards.
func (c *Client) SetRobots(agent *robots.Agent) {
	c.robots = agent
}

// Fetch runs one logical fetch including its redirect chain and returns
// the scanned fragment. There is no partial-success mode and no internal
// retry.
func (c *Client) Fetch(ctx context.Context, req types.FetchRequest) (*types.FetchResult, error) {
	if req.URL == nil {
		return nil, errors.New("request URL is nil")
	}
	return c.fetch(ctx, req, 0)
}

func (c *Client) fetch(parentCtx context.Context, req types.FetchRequest, hop int) (*types.FetchResult, error) {
	if hop == 0 {
		// Redirect hops are continuations of an already-admitted request
		// and bypass both gates.
		if c.robots != nil && !c.robots.Allowed(parentCtx, req.URL) {
			return nil, fmt.Errorf("%w: %s", ErrRobotsDenied, req.URL)
		}
		if req.RateLimited && !c.gate.Allow(req.URL.Hostname()) {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, req.URL.Hostname())
		}
	}

	ctx := parentCtx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	// Teardown must be idempotent: it runs on every terminal condition
	// and a second call is a no-op.
	var closeOnce sync.Once
	teardown := func() {
		closeOnce.Do(func() {
			_ = resp.Body.Close()
		})
	}
	defer teardown()

	if _, redirect := redirectStatuses[resp.StatusCode]; redirect {
		location := resp.Header.Get("Location")
		teardown()
		return c.redirect(parentCtx, req, hop, location)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.StatusCode)
	}

	if err := checkContentType(resp.Header.Get("Content-Type")); err != nil {
		return nil, err
	}

	reader, closers, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	sc := newScanner(req)
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if sc.Feed(buf[:n]) == scanner.Done {
				teardown()
				break
			}
		}
		if readErr == io.EOF {
			sc.Finish()
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read body from %s: %w", req.URL, readErr)
		}
	}

	return &types.FetchResult{
		Body:      string(sc.Output()),
		FinalURL:  req.URL,
		FetchedAt: time.Now(),
	}, nil
}

func (c *Client) redirect(ctx context.Context, req types.FetchRequest, hop int, location string) (*types.FetchResult, error) {
	if location == "" {
		return nil, fmt.Errorf("fetch %s: redirect without location", req.URL)
	}
	if hop+1 > req.MaxRedirects {
		return nil, fmt.Errorf("%w: %d hops allowed", ErrRedirectLimit, req.MaxRedirects)
	}

	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect location %q: %v", urlcheck.ErrInvalidURL, location, err)
	}
	// Relative locations resolve against the current origin; the result
	// is vetted exactly like the original URL.
	target, err := urlcheck.Validate(req.URL.ResolveReference(ref).String())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("following redirect", "from", req.URL.String(), "to", target.String(), "hop", hop+1)

	next := req
	next.URL = target
	return c.fetch(ctx, next, hop+1)
}

// FetchRendered produces the fragment from a script-rendered DOM snapshot
// instead of the raw byte stream. Gating, timeout, and scan budgets match
// Fetch; redirects are resolved inside the rendering session.
func (c *Client) FetchRendered(ctx context.Context, req types.FetchRequest, render func(context.Context, *url.URL) (string, error)) (*types.FetchResult, error) {
	if req.URL == nil {
		return nil, errors.New("request URL is nil")
	}
	if c.robots != nil && !c.robots.Allowed(ctx, req.URL) {
		return nil, fmt.Errorf("%w: %s", ErrRobotsDenied, req.URL)
	}
	if req.RateLimited && !c.gate.Allow(req.URL.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, req.URL.Hostname())
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	dom, err := render(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	return &types.FetchResult{
		Body:      ScanString(req, dom),
		FinalURL:  req.URL,
		FetchedAt: time.Now(),
	}, nil
}

// ScanString runs the request's scan over an already-materialized
// document, fed as a single chunk. Used for rendered DOM snapshots where
// no byte stream exists.
func ScanString(req types.FetchRequest, body string) string {
	sc := newScanner(req)
	if sc.Feed([]byte(body)) != scanner.Done {
		sc.Finish()
	}
	return string(sc.Output())
}

func newScanner(req types.FetchRequest) *scanner.Scanner {
	return scanner.New(scanner.Config{
		StartToken:    []byte(req.StartToken),
		StartIncluded: req.StartIncluded,
		StopToken:     []byte(req.StopToken),
		StopIncluded:  req.StopIncluded,
		MaxBytes:      req.MaxBytes,
		MinBuffer:     req.ChunkBuffer,
	})
}

func checkContentType(header string) error {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, header)
	}
	if _, ok := htmlContentTypes[strings.ToLower(mediaType)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, mediaType)
	}
	return nil
}

// decodeBody layers the response's Content-Encoding off the body stream so
// the scanner always sees plain document bytes.
func decodeBody(resp *http.Response) (io.Reader, []io.Closer, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, closers, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	return reader, closers, nil
}
