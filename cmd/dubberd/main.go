package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"dubber/internal/config"
	"dubber/internal/daemon"
	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/services/storage"
	"dubber/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "dubberd.log")},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}
	defer store.Close()

	notifier, err := notifications.NewService(cfg)
	if err != nil {
		logger.Error("connect notifications", logging.Error(err))
		return
	}
	defer notifier.Close()

	presigner := buildPresigner(cfg, logger)
	manager := workflow.NewManager(cfg, store, logger, notifier)

	d, err := daemon.New(cfg, store, logger, manager, notifier, presigner)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}
	defer d.Stop()

	<-ctx.Done()
	logger.Info("dubberd shutting down")
}

// buildPresigner is best-effort: upload and download URLs are simply
// unavailable when object storage is not configured.
func buildPresigner(cfg *config.Config, logger *slog.Logger) *storage.Presigner {
	if cfg.Storage.Bucket == "" {
		logger.Info("object storage not configured, presigned transfers disabled")
		return nil
	}
	presigner, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Warn("object storage unavailable", logging.Error(err))
		return nil
	}
	return presigner
}
