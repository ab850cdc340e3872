package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/config"
	"github.com/kozaktomas/hair-advisor/internal/database/postgres"
	"github.com/kozaktomas/hair-advisor/internal/detector"
	"github.com/kozaktomas/hair-advisor/internal/logging"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

// loadConfig reads the environment, validates it and builds the logger.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openDatabase connects to PostgreSQL and migrates it. It returns nil when DATABASE_URL is unset.
func openDatabase(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*postgres.Pool, error) {
	if cfg.Database.URL == "" {
		log.Info("DATABASE_URL not set, persistence disabled")
		return nil, nil
	}
	log.Info("connecting to PostgreSQL database")
	pool, err := postgres.Open(ctx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, nil
}

func newDetector(cfg *config.Config, log logrus.FieldLogger) *detector.Client {
	return detector.NewClient(cfg.Detector.URL, detector.Options{
		MinScore:    cfg.Detector.MinScore,
		LoadRetries: uint64(cfg.Detector.LoadRetries),
		Logger:      log,
	})
}

func newGateway(cfg *config.Config, log logrus.FieldLogger) *recommend.Client {
	retries := cfg.Gateway.Retries
	if retries == 0 {
		retries = -1
	}
	return recommend.NewClient(cfg.Gateway.URL, recommend.Options{
		Retries: retries,
		Timeout: cfg.Gateway.Timeout,
		Logger:  log,
	})
}

// captureOptions builds controller options from the configured geometry.
func captureOptions(cfg *config.Config) (capture.Options, error) {
	evaluator, err := cfg.Capture.Evaluator()
	if err != nil {
		return capture.Options{}, err
	}
	return capture.Options{
		Evaluator:    evaluator,
		ReadyTimeout: cfg.Capture.ReadyTimeout,
		JPEGQuality:  cfg.Capture.JPEGQuality,
	}, nil
}
