package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/hair-advisor/internal/database"
	"github.com/kozaktomas/hair-advisor/internal/database/postgres"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
	"github.com/kozaktomas/hair-advisor/internal/web"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quiz web API",
	Long: `Start the Hair Advisor web API.
The API serves the quiz catalog and drives quiz sessions: answering questions,
streaming camera frames over a websocket for selfie capture, and submitting the
finished profile to the recommendation service.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	revisit, err := quiz.ParseCaptureRevisit(cfg.Capture.Revisit)
	if err != nil {
		return err
	}
	copts, err := captureOptions(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	var store database.QuizSessionStore
	if pool != nil {
		defer pool.Close()
		store = postgres.NewQuizSessionRepository(pool)
		log.Info("session persistence enabled (PostgreSQL)")
	}

	catalog := quiz.DefaultCatalog()
	sm := middleware.NewSessionManager(ctx, middleware.SessionConfig{
		Catalog:   catalog,
		Submitter: newGateway(cfg, log),
		Loader:    newDetector(cfg, log),
		Capture:   copts,
		Quiz:      quiz.Options{Revisit: revisit},
		TTL:       cfg.Web.SessionTTL,
		Logger:    log,
	}, store)

	server := web.NewServer(cfg, catalog, sm, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("error during shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"host":     cfg.Web.Host,
		"port":     cfg.Web.Port,
		"detector": cfg.Detector.URL,
		"gateway":  cfg.Gateway.URL,
	}).Info("starting Hair Advisor web API")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
