package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nimbusdrive/file-service/internal/configuration"
	"github.com/nimbusdrive/file-service/internal/events"
	"github.com/nimbusdrive/file-service/internal/metadata"
	"github.com/nimbusdrive/file-service/internal/queue"
	"github.com/nimbusdrive/file-service/internal/staging"
	"github.com/nimbusdrive/file-service/internal/upload"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "run the upload worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	cfg := configuration.Load()
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := metadata.Open(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()
	store := metadata.NewPostgresStore(db)

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	area, err := staging.New(cfg.Staging.Dir, logger)
	if err != nil {
		return err
	}

	broker, err := queue.Connect(cfg.NATS.URL, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	consumer, err := broker.Consumer(cfg.Worker.AckWait, cfg.Worker.MaxDeliver)
	if err != nil {
		return err
	}

	publisher, err := events.NewJetStreamPublisher(broker.JetStream(), logger)
	if err != nil {
		return err
	}

	w := upload.NewWorker(store, blobs, area, consumer, publisher, upload.WorkerConfig{
		Concurrency: cfg.Worker.Concurrency,
		JobTimeout:  cfg.Worker.JobTimeout,
		RetryDelay:  cfg.Worker.RetryDelay,
	}, logger)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
