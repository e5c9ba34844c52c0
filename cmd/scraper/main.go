package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/webscout/deal-weaver/internal/config"
	"github.com/webscout/deal-weaver/internal/fetch"
	"github.com/webscout/deal-weaver/internal/notify"
	"github.com/webscout/deal-weaver/internal/progress"
	"github.com/webscout/deal-weaver/internal/scraper"
	"github.com/webscout/deal-weaver/internal/secret"
	"github.com/webscout/deal-weaver/internal/storage"
	"github.com/webscout/deal-weaver/internal/version"
)

func main() {
	websiteID := flag.Int64("website", 0, "scrape a single website by id")
	once := flag.Bool("once", false, "run one job and exit, ignoring the configured interval")
	flag.Parse()

	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	logrus.Infof("Deal Weaver v%s starting...", version.Version)

	// .env is optional, real environments set variables directly
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Environment loaded from .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logrus.Infof("Configuration loaded: db=%s, rate_limit=%dms, max_retries=%d",
		cfg.DBPath, cfg.RateLimitMs, cfg.MaxRetries)

	// Initialize storage
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	logrus.Infof("Database initialized: %s", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional long-term deal archive
	var archive scraper.Archiver
	if cfg.PostgresDSN != "" {
		pg, err := storage.NewDealArchive(ctx, cfg.PostgresDSN)
		if err != nil {
			logrus.Fatalf("Failed to connect deal archive: %v", err)
		}
		defer pg.Close()
		archive = pg
		logrus.Info("Postgres deal archive connected")
	}

	// Notification channel: Telegram when configured, logs otherwise
	var dispatcher notify.Dispatcher
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramDispatcher(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			logrus.Fatalf("Failed to initialize Telegram notifier: %v", err)
		}
		dispatcher = tg
	} else {
		logrus.Info("No Telegram token configured, deals will be logged only")
		dispatcher = notify.NewLogDispatcher()
	}

	var decryptor secret.Decryptor
	if cfg.SecretKey != "" {
		decryptor, err = secret.NewAESDecryptor(cfg.SecretKey)
		if err != nil {
			logrus.Fatalf("Failed to initialize secret decryption: %v", err)
		}
	}

	fetcher := fetch.New(fetch.Options{
		RateLimitMs:   cfg.RateLimitMs,
		MaxRetries:    cfg.MaxRetries,
		BackoffBaseMs: cfg.BackoffBaseMs,
		BackoffMaxMs:  cfg.BackoffMaxMs,
		TimeoutMs:     cfg.RequestTimeoutMs,
	})

	tracker := progress.NewTracker()
	svc := scraper.New(cfg, scraper.Deps{
		Store:     store,
		Fetcher:   fetcher,
		SeenStore: store,
		Progress:  tracker,
		Notifier:  dispatcher,
		Decryptor: decryptor,
		Archive:   archive,
	})

	// First signal cancels the running job, second one forces exit
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logrus.Infof("Received signal: %v, cancelling current job...", sig)
		tracker.RequestCancel()
		cancel()

		sig = <-sigChan
		logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
		os.Exit(1)
	}()

	// Progress logger during runs
	stopProgress := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if tracker.Running() {
					logrus.Info(tracker.LogProgress())
				}
			case <-stopProgress:
				return
			}
		}
	}()
	defer close(stopProgress)

	runJob := func() {
		result, err := svc.Run(ctx, *websiteID)
		if err != nil {
			logrus.Errorf("Scrape job failed: %v", err)
			return
		}
		for _, jobErr := range result.Errors {
			logrus.Warnf("Job error at %s: %s", jobErr.URL, jobErr.Message)
		}
	}

	runJob()

	if *once || cfg.ScrapeIntervalMinutes <= 0 {
		logrus.Info("Single run complete. Goodbye!")
		return
	}

	interval := time.Duration(cfg.ScrapeIntervalMinutes) * time.Minute
	logrus.Infof("Scheduling a job every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runJob()
		case <-ctx.Done():
			logrus.Info("Shutdown complete. Goodbye!")
			return
		}
	}
}
