package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/database"
	"weekly-report-hub/internal/fetcher"
	"weekly-report-hub/internal/llm"
	"weekly-report-hub/internal/metrics"
	"weekly-report-hub/internal/pipeline"
	"weekly-report-hub/internal/repository"
)

// One-shot ingestion run. Intended for cron jobs and manual reprocessing;
// the long-running API server lives in cmd/server.
func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	db, err := database.Init(cfg.Database.Path)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.New(db)

	var source fetcher.Source
	if cfg.Gmail.UseIMAP {
		source, err = fetcher.NewIMAPSource(&cfg.Gmail)
	} else {
		source, err = fetcher.NewGmailSource(&cfg.Gmail)
	}
	if err != nil {
		logrus.Fatalf("Failed to create mail source: %v", err)
	}
	defer source.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, err := llm.NewVertexClient(ctx, &cfg.Vertex)
	if err != nil {
		logrus.Fatalf("Failed to create model client: %v", err)
	}

	pipe := pipeline.New(source, generator, repo, metrics.NewMetrics(), cfg)

	stats, err := pipe.Run(ctx, pipeline.NewWriterSink(os.Stdout))
	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			logrus.Warn("Another ingestion run holds the lock, exiting")
			os.Exit(0)
		}
		logrus.Errorf("Ingestion run failed: %v", err)
		os.Exit(1)
	}

	logrus.WithFields(logrus.Fields{
		"processed":  stats.Processed,
		"registered": stats.MailsRegistered,
		"records":    stats.Records,
	}).Info("Ingestion run finished")
}
