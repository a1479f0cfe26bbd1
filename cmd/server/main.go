package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mirai-cascade-server/internal/api"
	"github.com/mirai-cascade-server/internal/cache"
	"github.com/mirai-cascade-server/internal/config"
	"github.com/mirai-cascade-server/internal/database"
	"github.com/mirai-cascade-server/internal/domain"
	"github.com/mirai-cascade-server/internal/feedback"
	"github.com/mirai-cascade-server/internal/model"
	"github.com/mirai-cascade-server/internal/repository"
	"github.com/mirai-cascade-server/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mirai-cascade-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := configManager.GetConfig()

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stage models
	models, err := buildModels(cfg.Models, log)
	if err != nil {
		return fmt.Errorf("failed to load stage models: %w", err)
	}

	cascade, err := service.NewCascadeService(log, models, cfg.Risk)
	if err != nil {
		return fmt.Errorf("failed to build cascade service: %w", err)
	}

	var opts api.Options

	// Prediction persistence is optional; the server runs standalone
	// without it.
	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if cfg.Database.MigrationsPath != "" {
			runner, err := database.NewMigrationRunner(
				configManager.GetDatabaseConnectionString(), cfg.Database.MigrationsPath, log)
			if err != nil {
				return fmt.Errorf("failed to create migration runner: %w", err)
			}
			if err := runner.Up(); err != nil {
				runner.Close()
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			runner.Close()
		}

		opts.Predictions = repository.NewPredictionRepository(db.Pool, log)
	}

	if cfg.Cache.Enabled {
		predictionCache, err := cache.NewPredictionCache(cfg.Cache, log)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer predictionCache.Close()
		opts.Cache = predictionCache
	}

	store, err := buildFeedbackStore(configManager, cfg.Feedback)
	if err != nil {
		return fmt.Errorf("failed to open feedback store: %w", err)
	}
	if store != nil {
		defer store.Close()
		opts.Feedback = store
	}

	log.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"models_mode": cfg.Models.Mode,
		"database":    cfg.Database.Enabled,
		"cache":       cfg.Cache.Enabled,
	}).Info("Starting Mirai cascade server")

	server := api.NewServer(configManager, cascade, log, opts)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func newLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output == "stderr" {
		log.SetOutput(os.Stderr)
	}

	return log, nil
}

func buildModels(cfg domain.ModelsConfig, log *logrus.Logger) (domain.ModelSet, error) {
	switch cfg.Mode {
	case "remote":
		return model.NewRemoteModelSet(cfg.Remote, log)
	default:
		return model.LoadModelSet(cfg.ArtifactsDir, log)
	}
}

func buildFeedbackStore(configManager *config.Manager, cfg domain.FeedbackConfig) (feedback.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return feedback.NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return feedback.NewPostgresStoreFromURL(configManager.GetDatabaseConnectionString())
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown feedback backend %q", cfg.Backend)
	}
}
