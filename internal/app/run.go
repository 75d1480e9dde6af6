package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Run starts the application and blocks until a shutdown signal or the
// console session ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.metricsServer.Start(ctx); err != nil {
		return err
	}

	logrus.Info("application started successfully")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.runConsole(ctx)

	<-ctx.Done()
	logrus.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Shutdown stops components in reverse dependency order. Errors are
// logged but don't stop the sequence.
func (a *App) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down application...")

	if a.runtime != nil {
		a.runtime.Teardown()
	}

	if err := a.metricsServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error shutting down metrics server: %v", err)
	}

	if a.sandbox != nil {
		if err := a.sandbox.Shutdown(ctx); err != nil {
			logrus.Errorf("error shutting down sandbox backend: %v", err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logrus.Errorf("error closing Redis connection: %v", err)
		}
	}

	logrus.Info("application shutdown complete")
	return nil
}
