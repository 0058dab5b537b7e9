package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/database"
	"weekly-report-hub/internal/fetcher"
	"weekly-report-hub/internal/llm"
	"weekly-report-hub/internal/metrics"
	"weekly-report-hub/internal/pipeline"
	"weekly-report-hub/internal/repository"
	"weekly-report-hub/internal/runs"
	"weekly-report-hub/internal/scheduler"
	"weekly-report-hub/internal/server"
)

func main() {
	// Configure logging
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Weekly Report Hub")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize database
	db, err := database.Init(cfg.Database.Path)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.New(db)

	// Initialize metrics
	m := metrics.NewMetrics()

	// Initialize mail source
	var source fetcher.Source
	if cfg.Gmail.UseIMAP {
		source, err = fetcher.NewIMAPSource(&cfg.Gmail)
		if err != nil {
			logrus.Fatalf("Failed to create IMAP source: %v", err)
		}
		logrus.Info("Using IMAP for email fetching")
	} else {
		source, err = fetcher.NewGmailSource(&cfg.Gmail)
		if err != nil {
			logrus.Fatalf("Failed to create Gmail API source: %v", err)
		}
		logrus.Info("Using Gmail API for email fetching")
	}

	// Initialize model client
	generator, err := llm.NewVertexClient(context.Background(), &cfg.Vertex)
	if err != nil {
		logrus.Fatalf("Failed to create model client: %v", err)
	}

	// Initialize ingestion pipeline
	pipe := pipeline.New(source, generator, repo, m, cfg)

	// Initialize run registry and scheduler
	registry := runs.NewRegistry()
	sched := scheduler.New(&cfg.Scheduler, pipe, registry)

	// Initialize HTTP server
	handlers := server.NewHandlers(repo, registry, sched)
	router := server.SetupRouter(handlers)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start scheduler if enabled
	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			logrus.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler
	if sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			logrus.Errorf("Failed to stop scheduler: %v", err)
		}
	}

	// Wait for in-flight runs to finish
	sched.Wait()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	// Close mail source
	if err := source.Close(); err != nil {
		logrus.Errorf("Failed to close mail source: %v", err)
	}

	logrus.Info("Server stopped gracefully")
}
