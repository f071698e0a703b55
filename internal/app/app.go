package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-viewer/internal/clients/redis"
	httpapi "github.com/yungbote/neurobridge-viewer/internal/http"
	httpH "github.com/yungbote/neurobridge-viewer/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-viewer/internal/http/middleware"
	"github.com/yungbote/neurobridge-viewer/internal/observability"
	"github.com/yungbote/neurobridge-viewer/internal/platform/jwtauth"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
	"github.com/yungbote/neurobridge-viewer/internal/selection"
)

const ServiceName = "neurobridge-viewer"

type App struct {
	Log        *logger.Logger
	Cfg        Config
	Server     *httpapi.Server
	Pipeline   *sceneasset.Pipeline
	Selections *selection.Service

	source       archiveSource
	store        selection.Store
	shutdownOTel func(context.Context) error
}

func New(ctx context.Context, log *logger.Logger, cfg Config, version string) (*App, error) {
	otelCfg := observability.OtelConfigFromEnv(ServiceName, cfg.LogMode, version)
	shutdownOTel := observability.InitOTel(ctx, log, otelCfg)

	verifier, err := jwtauth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	metrics := observability.Init(log)
	metrics.StartServer(ctx, log, cfg.MetricsAddr)

	src, err := resolveArchiveSource(ctx, log, cfg, verifier, metrics)
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, err
	}

	registry := sceneasset.NewBlobRegistry(cfg.BlobURLPrefix)
	metrics.TrackBlobs(registry.Len)
	resolution := sceneasset.DefaultResolution
	pcfg := sceneasset.Config{
		Source:            src,
		Registry:          registry,
		Resolution:        resolution,
		MaxExtractedBytes: cfg.MaxExtractedBytes,
	}
	if metrics != nil {
		pcfg.Observer = metrics
	}
	pipeline, err := sceneasset.New(log, pcfg)
	if err != nil {
		_ = src.close()
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("init scene pipeline: %w", err)
	}

	store, err := resolveSelectionStore(log, cfg)
	if err != nil {
		_ = src.close()
		_ = shutdownOTel(ctx)
		return nil, err
	}
	selections := selection.NewService(log, store)
	if metrics != nil {
		selections.Observe(metrics)
	}

	server := httpapi.NewServer(httpapi.RouterConfig{
		Log:            log,
		ServiceName:    ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		Tracing:        otelCfg.Enabled,
		Metrics:        metrics,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, verifier),
		ViewerHandler:  httpH.NewViewerHandler(log, pipeline, registry, resolution, selections),
		HealthHandler:  httpH.NewHealthHandler(pipeline, registry),
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Server:       server,
		Pipeline:     pipeline,
		Selections:   selections,
		source:       src,
		store:        store,
		shutdownOTel: shutdownOTel,
	}, nil
}

func resolveSelectionStore(log *logger.Logger, cfg Config) (selection.Store, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Info("Selection store: in-memory (REDIS_ADDR unset)")
		return selection.NewMemoryStore(), nil
	}
	store, err := redis.NewSelectionStore(log, redis.SelectionStoreConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.RedisSelectionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis selection store: %w", err)
	}
	return store, nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(":" + a.Cfg.Port)
}

// Shutdown stops the listener, revokes the active scene and releases
// upstream clients.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	err := a.Server.Shutdown(ctx)
	if a.Pipeline != nil {
		_ = a.Pipeline.Close()
	}
	if a.source.close != nil {
		if cerr := a.source.close(); cerr != nil {
			a.Log.Warn("Archive source close failed", "error", cerr)
		}
	}
	if c, ok := a.store.(interface{ Close() error }); ok {
		if cerr := c.Close(); cerr != nil {
			a.Log.Warn("Selection store close failed", "error", cerr)
		}
	}
	if a.shutdownOTel != nil {
		if oerr := a.shutdownOTel(ctx); oerr != nil {
			a.Log.Warn("Tracer shutdown failed", "error", oerr)
		}
	}
	a.Log.Sync()
	return err
}
