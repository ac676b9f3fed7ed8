package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/pricehound/api"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/extract"
	"github.com/use-agent/pricehound/fetcher"
	"github.com/use-agent/pricehound/llm"
	"github.com/use-agent/pricehound/normalize"
	"github.com/use-agent/pricehound/pipeline"
	"github.com/use-agent/pricehound/search"
	"github.com/use-agent/pricehound/whitelist"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("pricehound starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 3. Initialise the tiered cache ──────────────────────────────
	durable, err := cache.NewSQLite(cfg.Cache.SQLitePath)
	if err != nil {
		slog.Error("failed to open cache database", "path", cfg.Cache.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer durable.Close()

	var fast cache.Backend
	if cfg.Cache.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisTier, err := cache.NewRedis(ctx, cfg.Cache.RedisURL)
		cancel()
		if err != nil {
			// The fast tier is optional; run durable-only rather than exit.
			slog.Warn("redis unavailable, continuing without fast tier", "error", err)
		} else {
			fast = redisTier
			defer redisTier.Close()
			slog.Info("redis fast tier connected")
		}
	}

	store := cache.NewTiered(durable, fast, cfg.Cache.SweepInterval)
	defer store.Stop()

	// ── 4. Initialise the fetcher (launches browser if enabled) ─────
	f := fetcher.New(cfg.Fetcher, cfg.Browser)
	defer f.Close()

	// ── 5. Wire the search pipeline ─────────────────────────────────
	llmClient := llm.NewClient(nil, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	if !llmClient.Enabled() {
		slog.Warn("no LLM API key configured: whitelist falls back to static sets, generic extraction disabled")
	}

	gen := whitelist.NewGenerator(llmClient, store, cfg.Cache.WhitelistTTL)
	engine := search.NewEngine(nil, cfg.Search, cfg.Fetcher.UserAgent)
	extractors := extract.Chain{
		extract.NewAmazonExtractor(),
		extract.NewGenericLLMExtractor(llmClient),
	}
	normalizer := normalize.New(cfg.Normalize.Rates)

	p := pipeline.New(gen, engine, f, extractors, normalizer, store, pipeline.Options{
		TargetCurrency: cfg.Normalize.TargetCurrency,
		ProductTTL:     cfg.Cache.ProductTTL,
	})

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(p, gen, f, store, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// f.Close() runs via defer — drains the page pool and kills Chrome.
	slog.Info("pricehound stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
