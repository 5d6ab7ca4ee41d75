package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderOptions configures the optional JavaScript render path. Rendered
// pages bypass the byte stream; their final DOM is scanned as one chunk.
type RenderOptions struct {
	Timeout            time.Duration
	UserAgent          string
	WaitForSelector    string
	DisableHeadless    bool
	ConcurrentSessions int
}

// ChromedpRenderer drives headless Chrome sessions with bounded
// concurrency.
type ChromedpRenderer struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewChromedpRenderer constructs a renderer.
func NewChromedpRenderer(opts RenderOptions, logger *slog.Logger) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// Render navigates to the target and returns the final outer HTML.
func (r *ChromedpRenderer) Render(parentCtx context.Context, target *url.URL) (string, error) {
	if target == nil {
		return "", fmt.Errorf("render target is nil")
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return "", parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	actions := []chromedp.Action{chromedp.Navigate(target.String())}
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		actions = append(actions, chromedp.WaitVisible(sel, chromedp.ByQuery))
	}

	var outerHTML string
	actions = append(actions, chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery))

	start := time.Now()
	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", target, err)
	}
	r.logger.Debug("rendered page", "url", target.String(), "elapsed", time.Since(start).String())

	return outerHTML, nil
}
