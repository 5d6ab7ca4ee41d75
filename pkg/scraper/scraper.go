// Package scraper fetches a remote HTML resource and returns a bounded,
// possibly-cropped slice of its body selected by textual markers, without
// downloading or parsing more of the document than necessary.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/justlep/scraper/internal/fetcher"
	"github.com/justlep/scraper/internal/processor"
	"github.com/justlep/scraper/internal/robots"
	"github.com/justlep/scraper/internal/urlcheck"
	"github.com/justlep/scraper/pkg/types"
)

// Error kinds; match with errors.Is.
var (
	ErrInvalidURL             = urlcheck.ErrInvalidURL
	ErrRateLimited            = fetcher.ErrRateLimited
	ErrRedirectLimit          = fetcher.ErrRedirectLimit
	ErrUnsupportedContentType = fetcher.ErrUnsupportedContentType
)

// Title lookup budgets. Video hosts bury the title tag deep in preloaded
// markup, so they get a larger window.
const (
	titleBudget          = 30_000
	titleBudgetVideoHost = 300_000
)

var videoHosts = map[string]struct{}{
	"youtube.com":     {},
	"youtu.be":        {},
	"vimeo.com":       {},
	"dailymotion.com": {},
	"twitch.tv":       {},
}

// Renderer produces the DOM snapshot of a page after script execution.
// Installed via Config for fetches that opt into rendering.
type Renderer interface {
	Render(ctx context.Context, target *url.URL) (string, error)
}

// Config customizes a Scraper instance.
type Config struct {
	// RateInterval is the per-host reservation window (default 3s).
	RateInterval time.Duration
	ProxyURL     string
	Logger       *slog.Logger
	// Robots enables the optional robots.txt politeness gate.
	Robots robots.Config
	// Renderer, when set, enables Options.SetRendered fetches.
	Renderer Renderer
}

// Scraper owns one fetch client and its process-wide per-host limiter.
type Scraper struct {
	client   *fetcher.Client
	renderer Renderer
}

// New constructs a Scraper.
func New(cfg Config) (*Scraper, error) {
	client, err := fetcher.NewClient(fetcher.Options{
		RateInterval: cfg.RateInterval,
		ProxyURL:     cfg.ProxyURL,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Robots.Respect {
		client.SetRobots(robots.NewAgent(cfg.Robots, client.HTTPClient()))
	}
	return &Scraper{client: client, renderer: cfg.Renderer}, nil
}

// FetchFragment performs the full fetch/redirect/scan/compact/transform
// pipeline and returns the extracted string.
func (s *Scraper) FetchFragment(ctx context.Context, o *Options) (string, error) {
	o.timings.StartLoad()
	res, err := s.load(ctx, o)
	o.timings.StopLoad()
	if err != nil {
		return "", err
	}
	o.finalURL = res.FinalURL

	body := res.Body
	o.timings.StartTransform()
	if o.compact {
		body = processor.Compact(body)
	}
	if o.transform != nil {
		body = o.transform(body)
	}
	o.timings.StopTransform()
	return body, nil
}

func (s *Scraper) load(ctx context.Context, o *Options) (*types.FetchResult, error) {
	if o.rendered {
		if s.renderer == nil {
			return nil, errors.New("rendered fetch requested but no renderer configured")
		}
		return s.client.FetchRendered(ctx, o.request(), s.renderer.Render)
	}
	return s.client.Fetch(ctx, o.request())
}

// FetchDocument runs FetchFragment and parses the result into a queryable
// goquery tree, wrapping partial markup in a minimal container element.
func (s *Scraper) FetchDocument(ctx context.Context, o *Options) (*goquery.Document, error) {
	fragment, err := s.FetchFragment(ctx, o)
	if err != nil {
		return nil, err
	}
	o.timings.StartToDOM()
	doc, err := processor.Document(fragment)
	o.timings.StopToDOM()
	return doc, err
}

// FetchText runs FetchFragment and flattens the markup into its visible
// text content, with script and style bodies dropped.
func (s *Scraper) FetchText(ctx context.Context, o *Options) (string, error) {
	fragment, err := s.FetchFragment(ctx, o)
	if err != nil {
		return "", err
	}
	// Flattening parses the fragment, so it is timed as the tree phase.
	o.timings.StartToDOM()
	text, err := processor.Text(fragment)
	o.timings.StopToDOM()
	if err != nil {
		return "", err
	}
	return text, nil
}

// LookupTitle fetches just enough of the page at location to extract its
// <title> text, with HTML entities decoded. Pass skipRateLimit to bypass
// the per-host frequency gate.
func (s *Scraper) LookupTitle(ctx context.Context, location string, skipRateLimit ...bool) (string, error) {
	o, err := NewOptions(location)
	if err != nil {
		return "", err
	}
	o.SetStartToken("<title", true)
	o.SetStopToken("</title>", false)
	if err := o.SetMaxBytes(titleBudgetFor(o.Location().Hostname())); err != nil {
		return "", err
	}
	o.SetCompact(true)
	o.SetTransform(processor.TitleText)
	if len(skipRateLimit) > 0 && skipRateLimit[0] {
		o.SetRateLimited(false)
	}
	return s.FetchFragment(ctx, o)
}

func titleBudgetFor(host string) int {
	host = strings.ToLower(host)
	for videoHost := range videoHosts {
		if host == videoHost || strings.HasSuffix(host, "."+videoHost) {
			return titleBudgetVideoHost
		}
	}
	return titleBudget
}
