package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/justlep/scraper/internal/api"
	"github.com/justlep/scraper/internal/config"
	"github.com/justlep/scraper/internal/fetcher"
	"github.com/justlep/scraper/internal/robots"
	"github.com/justlep/scraper/internal/storage"
	"github.com/justlep/scraper/pkg/scraper"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to service configuration file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scr, err := buildScraper(cfg, logger)
	if err != nil {
		logger.Error("initialise scraper failed", "error", err)
		os.Exit(1)
	}

	var history *storage.History
	if cfg.History.Enabled {
		history, err = storage.NewHistory(cfg.History)
		if err != nil {
			logger.Error("initialise fetch history failed", "error", err)
			os.Exit(1)
		}
		defer history.Close()
	}

	server := api.NewServer(scr, cfg.Fetch, history, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("api server listening", "addr", cfg.Server.Addr, "rendering", cfg.Rendering.Enabled, "history", cfg.History.Enabled)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("api server stopped")
}

func buildScraper(cfg *config.Config, logger *slog.Logger) (*scraper.Scraper, error) {
	scraperCfg := scraper.Config{
		RateInterval: cfg.RateLimit.Interval.Duration,
		ProxyURL:     cfg.Fetch.ProxyURL,
		Logger:       logger,
		Robots: robots.Config{
			Respect:   cfg.Robots.Respect,
			UserAgent: cfg.Robots.UserAgent,
			CacheTTL:  cfg.Robots.CacheTTL.Duration,
			Overrides: cfg.Robots.Overrides,
		},
	}
	if cfg.Rendering.Enabled {
		scraperCfg.Renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:            cfg.Rendering.Timeout.Duration,
			UserAgent:          cfg.Fetch.UserAgent,
			WaitForSelector:    cfg.Rendering.WaitForSelector,
			DisableHeadless:    cfg.Rendering.DisableHeadless,
			ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
		}, logger)
	}
	return scraper.New(scraperCfg)
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
