package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/internal/app"
	"github.com/hatchboard/engage-runtime/internal/config"
	"github.com/hatchboard/engage-runtime/pkg/runtime"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err == runtime.ErrDisabled {
		logrus.Warn("widget is disabled for this project, nothing to do")
		os.Exit(0)
	}
	if err != nil {
		logrus.Fatalf("failed to initialize application: %v", err)
	}

	if err := a.Run(ctx); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
