package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"autoria-scraper/internal/api"
	"autoria-scraper/internal/browser"
	"autoria-scraper/internal/config"
	"autoria-scraper/internal/database"
	"autoria-scraper/internal/fetch"
	"autoria-scraper/internal/parser"
	"autoria-scraper/internal/ratelimit"
	"autoria-scraper/internal/scheduler"
	"autoria-scraper/internal/scraper"
	"autoria-scraper/pkg/logger"
)

func main() {
	var (
		scrapeOnce = flag.Bool("once", false, "Run a single scrape and exit")
		dumpOnce   = flag.Bool("dump-once", false, "Create a database dump and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logg := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logg.Info("starting autoria scraper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logg.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logg.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	listings := database.NewListingRepository(db).WithStream(cfg.Redis.Stream)
	if err := listings.InitSchema(ctx); err != nil {
		logg.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	dumper := database.NewDumper(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
	}, cfg.Scraper.DumpDir, logg)

	if *dumpOnce {
		if _, err := dumper.CreateDump(ctx); err != nil {
			logg.Error("dump failed", "error", err)
			os.Exit(1)
		}
		return
	}

	limiter := ratelimit.NewIntervalLimiter(cfg.Scraper.RequestDelay)
	fetcher := fetch.New(fetch.Options{
		Concurrency: cfg.Scraper.Concurrency,
		Timeout:     cfg.Scraper.RequestTimeout,
		RetryDelay:  cfg.Scraper.RequestDelay,
		MaxRetries:  cfg.Scraper.MaxRetries,
	}, limiter, logg)

	s := scraper.New(fetcher, parser.NewAutoRiaParser(), listings, scraper.Options{
		StartURL:    cfg.Scraper.StartURL,
		Concurrency: cfg.Scraper.Concurrency,
	}, logg)

	if cfg.Browser.Enabled {
		b, err := browser.New(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
		})
		if err != nil {
			logg.Error("failed to start browser", "error", err)
			os.Exit(1)
		}
		defer b.Close()
		s.WithRenderer(b)
	}

	if *scrapeOnce {
		if _, err := s.Scrape(ctx); err != nil {
			logg.Error("scrape failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Relay ships NEW_LISTING_FOUND events from the outbox to Redis.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()

	relay := database.NewRelay(db, redisClient, logg, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error("relay stopped with error", "error", err)
		}
	}()

	handlers := api.NewHandlers(s, dumper, logg)
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handlers.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logg.Info("admin api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("admin api failed", "error", err)
			cancel()
		}
	}()

	sched, err := scheduler.New(cfg.Scraper.Timezone, logg)
	if err != nil {
		logg.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	err = sched.AddDaily("scrape", cfg.Scraper.ScrapeTime, true, func(ctx context.Context) {
		if _, err := s.Scrape(ctx); err != nil {
			logg.Error("scheduled scrape failed", "error", err)
		}
	})
	if err != nil {
		logg.Error("failed to schedule scrape", "error", err)
		os.Exit(1)
	}

	err = sched.AddDaily("dump", cfg.Scraper.DumpTime, false, func(ctx context.Context) {
		if _, err := dumper.CreateDump(ctx); err != nil {
			logg.Error("scheduled dump failed", "error", err)
		}
	})
	if err != nil {
		logg.Error("failed to schedule dump", "error", err)
		os.Exit(1)
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("scheduler stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("admin api shutdown failed", "error", err)
	}

	logg.Info("shutdown complete")
}
