package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/casedesk-backend/internal/app"
	"github.com/yungbote/casedesk-backend/internal/platform/envutil"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

func main() {
	mode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(mode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Loading configuration...")
	cfg, err := app.LoadConfig(log)
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		log.Sync()
		os.Exit(1)
	}
	if cfg.LogMode != mode {
		// the config file may pick a different mode
		if l, err := logger.New(cfg.LogMode); err == nil {
			log.Sync()
			log = l
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		log.Sync()
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", "error", err)
		}
	}
}
