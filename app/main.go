package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regscanner/app/api"
	"regscanner/app/cfg"
	"regscanner/app/classify"
	"regscanner/app/database"
	"regscanner/app/enrich"
	"regscanner/app/feed"
	"regscanner/app/fetcher"
	"regscanner/app/scan"
	"regscanner/app/scheduler"
	"regscanner/app/scrape"
	"regscanner/app/sources"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting RegScanner", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	updateRepo := database.NewUpdateRepo(db)
	healthRepo := database.NewHealthRepo(db)
	ruleRepo := database.NewRuleRepo(db)
	sourceRepo := database.NewSourceRepo(db)

	registry := sources.NewRegistry(appCfg.SourcesDir, sourceRepo)

	httpFetcher := fetcher.New(appCfg.UserAgent,
		fetcher.WithMaxRetries(appCfg.MaxRetries),
		fetcher.WithTimeout(time.Duration(appCfg.FetchTimeout)*time.Second))

	var classifier classify.Classifier
	if appCfg.ClassifyEndpoint != "" {
		classifier = classify.NewClient(appCfg.ClassifyEndpoint, appCfg.ClassifyModel, appCfg.ClassifyAPIKey)
		slog.Info("Classification enabled", "endpoint", appCfg.ClassifyEndpoint, "model", appCfg.ClassifyModel)
	} else {
		slog.Warn("Classification disabled (CLASSIFY_ENDPOINT not set), scans will persist nothing")
	}

	orchestrator := scan.NewOrchestrator(
		registry,
		httpFetcher,
		feed.NewParser(),
		scrape.NewScraper(httpFetcher),
		enrich.NewEnricher(httpFetcher),
		classifier,
		updateRepo,
		healthRepo,
		ruleRepo,
		scan.Limits{
			FetchConcurrency: appCfg.FetchLimit,
			EnrichLimit:      appCfg.EnrichLimit,
			ClassifyLimit:    appCfg.ClassifyLimit,
			RecentWindow:     appCfg.RecentWindow,
			CompanyContext:   appCfg.CompanyContext,
		},
	)

	var scanScheduler *scheduler.Scheduler
	if appCfg.ScanInterval > 0 {
		scanScheduler = scheduler.NewScheduler(orchestrator,
			time.Duration(appCfg.ScanInterval)*time.Second, 7)
		scanScheduler.Start()
		defer scanScheduler.Stop()
		slog.Info("Scheduler started", "interval_seconds", appCfg.ScanInterval)
	} else {
		slog.Info("Scheduler disabled (SCAN_INTERVAL=0), scans run on demand only")
	}

	apiHandler := api.NewHandler(orchestrator, updateRepo, healthRepo, db)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
