package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/httpapi"
	"github.com/mikey/llm-email-classifier/internal/adapters/smtpingest"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/di"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	httpServer *httpapi.Server,
	smtpIngest *smtpingest.Ingest,
	analytics core.AnalyticsSink,
) error {
	defer logger.Sync()

	if smtpIngest != nil {
		if err := smtpIngest.Start(); err != nil {
			logger.Fatal("Failed to start SMTP ingestion", zap.Error(err))
			return err
		}
	}

	httpErrCh := make(chan error, 1)
	if cfg.GetBool("server.http.enabled") {
		go func() {
			httpErrCh <- httpServer.Start()
		}()
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Shutting down...")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	if smtpIngest != nil {
		if err := smtpIngest.Stop(); err != nil {
			logger.Error("Failed to stop SMTP ingestion", zap.Error(err))
		}
	}
	analytics.Stop()

	logger.Info("Shutdown complete")
	return nil
}
