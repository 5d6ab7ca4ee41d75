// Command scrape performs a single fetch from the command line and prints
// the extracted fragment (or page title) to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justlep/scraper/internal/config"
	"github.com/justlep/scraper/pkg/scraper"
)

func main() {
	var (
		cfgPath      = flag.String("config", "", "Optional YAML config file supplying fetch defaults")
		urlFlag      = flag.String("url", "", "Target URL (required)")
		startToken   = flag.String("start", "", "Marker the fragment begins at")
		includeStart = flag.Bool("include-start", false, "Keep the start marker in the output")
		stopToken    = flag.String("stop", "", "Marker the fragment ends at")
		includeStop  = flag.Bool("include-stop", false, "Keep the stop marker in the output")
		maxBytes     = flag.Int("max-bytes", 0, "Output byte budget (0 = default)")
		timeout      = flag.Duration("timeout", 10*time.Second, "Per-exchange timeout")
		redirects    = flag.Int("redirects", 1, "Redirect hop budget (1-4)")
		userAgent    = flag.String("ua", "", "User-Agent override")
		headersFile  = flag.String("headers", "", "File with newline-separated 'Name: value' headers")
		compact      = flag.Bool("compact", false, "Collapse whitespace in the output")
		text         = flag.Bool("text", false, "Strip markup and print visible text only")
		title        = flag.Bool("title", false, "Fetch just the page title")
		noRateLimit  = flag.Bool("no-rate-limit", false, "Bypass the per-host frequency gate")
		showTimings  = flag.Bool("timings", false, "Print phase timings to stderr")
		verbose      = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *urlFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: scrape -url <location> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := settings{
		url:          *urlFlag,
		startToken:   *startToken,
		includeStart: *includeStart,
		stopToken:    *stopToken,
		includeStop:  *includeStop,
		maxBytes:     *maxBytes,
		timeout:      *timeout,
		redirects:    *redirects,
		userAgent:    *userAgent,
		headersFile:  *headersFile,
		compact:      *compact,
		text:         *text,
		title:        *title,
		noRateLimit:  *noRateLimit,
		showTimings:  *showTimings,
	}

	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scrape: failed to load config: %v\n", err)
			os.Exit(1)
		}
		s = mergeConfigDefaults(s, cfg, explicitFlags())
	}

	if err := run(ctx, logger, s); err != nil {
		fmt.Fprintf(os.Stderr, "scrape: %v\n", err)
		os.Exit(1)
	}
}

type settings struct {
	url          string
	startToken   string
	includeStart bool
	stopToken    string
	includeStop  bool
	maxBytes     int
	timeout      time.Duration
	redirects    int
	userAgent    string
	headersFile  string
	compact      bool
	text         bool
	title        bool
	noRateLimit  bool
	showTimings  bool

	// Config-only tunables without a flag counterpart.
	rateInterval time.Duration
	proxyURL     string
}

func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// mergeConfigDefaults fills in fetch defaults from the config file for
// every flag the user did not set explicitly on the command line.
func mergeConfigDefaults(s settings, cfg *config.Config, explicit map[string]bool) settings {
	if !explicit["ua"] && cfg.Fetch.UserAgent != "" {
		s.userAgent = cfg.Fetch.UserAgent
	}
	if !explicit["timeout"] && cfg.Fetch.Timeout.Duration > 0 {
		s.timeout = cfg.Fetch.Timeout.Duration
	}
	if !explicit["redirects"] && cfg.Fetch.MaxRedirects > 0 {
		s.redirects = cfg.Fetch.MaxRedirects
	}
	if !explicit["max-bytes"] && cfg.Fetch.MaxBytes > 0 {
		s.maxBytes = cfg.Fetch.MaxBytes
	}
	s.rateInterval = cfg.RateLimit.Interval.Duration
	s.proxyURL = cfg.Fetch.ProxyURL
	return s
}

func run(ctx context.Context, logger *slog.Logger, s settings) error {
	scr, err := scraper.New(scraper.Config{
		RateInterval: s.rateInterval,
		ProxyURL:     s.proxyURL,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if s.title {
		title, err := scr.LookupTitle(ctx, s.url, s.noRateLimit)
		if err != nil {
			return err
		}
		fmt.Println(title)
		return nil
	}

	opts, err := scraper.NewOptions(s.url)
	if err != nil {
		return err
	}
	opts.SetStartToken(s.startToken, s.includeStart)
	opts.SetStopToken(s.stopToken, s.includeStop)
	opts.SetCompact(s.compact)
	if s.noRateLimit {
		opts.SetRateLimited(false)
	}
	if s.userAgent != "" {
		opts.SetUserAgent(s.userAgent)
	}
	if s.maxBytes > 0 {
		if err := opts.SetMaxBytes(s.maxBytes); err != nil {
			return err
		}
	}
	if err := opts.SetTimeout(s.timeout); err != nil {
		return err
	}
	if err := opts.SetMaxRedirects(s.redirects); err != nil {
		return err
	}
	if s.headersFile != "" {
		raw, err := readHeadersFile(s.headersFile)
		if err != nil {
			return err
		}
		if err := opts.SetHeaders(raw); err != nil {
			return err
		}
	}

	fetch := scr.FetchFragment
	if s.text {
		fetch = scr.FetchText
	}
	fragment, err := fetch(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Println(fragment)

	if s.showTimings {
		timings := opts.Timings()
		fmt.Fprintf(os.Stderr, "load=%s transform=%s\n", timings.Load, timings.Transform)
	}
	return nil
}

func readHeadersFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open headers file: %w", err)
	}
	defer fh.Close()
	raw, err := io.ReadAll(fh)
	if err != nil {
		return "", fmt.Errorf("read headers file: %w", err)
	}
	return string(raw), nil
}
