package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-viewer/internal/app"
	"github.com/yungbote/neurobridge-viewer/internal/platform/envutil"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

var version = "dev"

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Loading configuration...")
	cfg, err := app.LoadConfig(log)
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg, version)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Viewer server listening", "port", cfg.Port, "archive_source", cfg.ArchiveSource)
		return a.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("Shutting down viewer server...")
		return a.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Viewer server exited with error", "error", err)
		os.Exit(1)
	}
}
