package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nimbusdrive/file-service/internal/api"
	"github.com/nimbusdrive/file-service/internal/api/handlers"
	"github.com/nimbusdrive/file-service/internal/api/middleware"
	"github.com/nimbusdrive/file-service/internal/blob"
	"github.com/nimbusdrive/file-service/internal/configuration"
	"github.com/nimbusdrive/file-service/internal/events"
	"github.com/nimbusdrive/file-service/internal/metadata"
	"github.com/nimbusdrive/file-service/internal/queue"
	"github.com/nimbusdrive/file-service/internal/staging"
	"github.com/nimbusdrive/file-service/internal/upload"
)

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	return logger
}

func newBlobStore(ctx context.Context, cfg *configuration.Config, logger *slog.Logger) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return blob.NewMinioStore(ctx, cfg.MinIO, logger)
	case "local":
		return blob.NewLocalStore(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
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
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

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

	publisher, err := events.NewJetStreamPublisher(broker.JetStream(), logger)
	if err != nil {
		return err
	}

	auth, err := middleware.NewAuthenticator(ctx, cfg.KeycloakURL)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	intake := upload.NewIntake(store, area, broker, blobs.Name(), cfg.Upload.MaxFileSize, logger)
	h := handlers.New(intake, store, blobs, publisher, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterRoutes(r, h, auth.RequireAuth())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
