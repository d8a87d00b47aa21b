package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"embedfix/internal/bot"
	"embedfix/internal/config"
	"embedfix/internal/fetch"
	"embedfix/internal/storage"
	"embedfix/internal/translator"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"locale_dir":    cfg.LocaleDir,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	log.Info("Initializing components...")

	// Database
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	// Localization
	tr := translator.New(log)
	if err := tr.Load(cfg.LocaleDir); err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}

	// Upstream API client and media downloader
	httpClient := &http.Client{Timeout: cfg.DownloadTimeout}
	client := fetch.NewClient(httpClient, cfg.UserAgent, log)
	downloader := fetch.NewDownloader(httpClient, cfg.UserAgent, log)

	// Bot Handler
	botHandler, err := bot.NewHandler(cfg, repo, client, downloader, tr, log)
	if err != nil {
		log.Fatalf("Failed to initialize Discord bot handler: %v", err)
	}

	// --- Application Startup ---
	log.Info("Starting EmbedFix...")

	// Create context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop() // Ensure stop is called to release resources

	// Periodic BadgerDB value log garbage collection
	go repo.RunGC(ctx, storage.DefaultGCInterval)

	// Start the gateway connection in a separate goroutine
	go func() {
		if err := botHandler.Start(ctx); err != nil {
			log.WithError(err).Error("Bot stopped with error")
			stop()
		}
	}()

	log.Info("EmbedFix is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done() // Block here until the context is cancelled (Ctrl+C)

	// --- Graceful Shutdown ---
	log.Info("Shutting down EmbedFix...")
	stop() // Explicitly call stop to ensure signal handling is cleaned up

	// The deferred repo.Close() will run now.

	log.Info("EmbedFix shut down gracefully.")
}
