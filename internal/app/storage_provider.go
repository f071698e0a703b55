package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/neurobridge-viewer/internal/observability"
	"github.com/yungbote/neurobridge-viewer/internal/platform/gcp"
	"github.com/yungbote/neurobridge-viewer/internal/platform/jwtauth"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

var newSceneBucket = gcp.NewSceneBucket

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "archive storage bootstrap failed"
	}
	return fmt.Sprintf(
		"archive storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// archiveSource is the pipeline's upstream plus whatever must be closed
// with it.
type archiveSource struct {
	sceneasset.ArchiveSource
	close func() error
}

func resolveArchiveSource(ctx context.Context, log *logger.Logger, cfg Config, verifier *jwtauth.Verifier, m *observability.Metrics) (archiveSource, error) {
	switch cfg.ArchiveSource {
	case ArchiveSourceGCS:
		bucket, err := resolveSceneBucket(ctx, log, cfg, verifier)
		if err != nil {
			m.ObserveSourceBootstrap(ArchiveSourceGCS, cfg.ObjectStorageMode, "error", string(storageProviderBootstrapErrorCode(err)))
			return archiveSource{}, err
		}
		m.ObserveSourceBootstrap(ArchiveSourceGCS, cfg.ObjectStorageMode, "ok", "")
		return archiveSource{ArchiveSource: bucket, close: bucket.Close}, nil
	default:
		fetcher, err := sceneasset.NewHTTPFetcher(log, sceneasset.HTTPFetcherConfig{
			BaseURL:         cfg.SceneAPIBaseURL,
			Credentials:     credentialsFor(cfg),
			Timeout:         cfg.FetchTimeout,
			MaxArchiveBytes: cfg.MaxArchiveBytes,
		})
		if err != nil {
			m.ObserveSourceBootstrap(ArchiveSourceHTTP, "", "error", "invalid_config")
			return archiveSource{}, fmt.Errorf("init scene fetcher: %w", err)
		}
		m.ObserveSourceBootstrap(ArchiveSourceHTTP, "", "ok", "")
		log.Info("Selecting scene archive source", "source", ArchiveSourceHTTP, "base_url", cfg.SceneAPIBaseURL)
		return archiveSource{ArchiveSource: fetcher, close: func() error { return nil }}, nil
	}
}

// credentialsFor forwards the caller's bearer token, falling back to a
// configured service token.
func credentialsFor(cfg Config) sceneasset.CredentialSource {
	var fallback sceneasset.CredentialSource
	if cfg.SceneAPIToken != "" {
		fallback = sceneasset.StaticCredentials(cfg.SceneAPIToken)
	}
	return sceneasset.ContextCredentials{Fallback: fallback}
}

// bucketCredentials only yields the caller's own token, re-verified. The
// bucket reads with the service account, so nothing upstream checks it.
func bucketCredentials(verifier *jwtauth.Verifier) sceneasset.CredentialSource {
	return sceneasset.VerifiedCredentials{
		Source: sceneasset.ContextCredentials{},
		Verify: func(token string) error {
			if verifier == nil {
				return &sceneasset.Error{Kind: sceneasset.KindUnauthenticated, Message: "token verification unavailable"}
			}
			_, err := verifier.Subject(token)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, jwtauth.ErrExpiredToken):
				return &sceneasset.Error{Kind: sceneasset.KindExpiredSession, Message: "token expired", Err: err}
			default:
				return &sceneasset.Error{Kind: sceneasset.KindUnauthenticated, Message: "token rejected", Err: err}
			}
		},
	}
}

func resolveSceneBucket(ctx context.Context, log *logger.Logger, cfg Config, verifier *jwtauth.Verifier) (*gcp.SceneBucket, error) {
	storageCfg, err := gcp.ResolveArchiveStorageConfig(cfg.ObjectStorageMode, cfg.StorageEmulatorHost, cfg.GCSBucket, cfg.GCSPrefix)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Archive storage provider selection failed",
			"mode", storageCfg.Mode,
			"mode_source", storageCfg.ModeSource(),
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting archive storage provider",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", storageCfg.Bucket,
	)

	bucket, err := newSceneBucket(ctx, log, storageCfg, bucketCredentials(verifier), cfg.MaxArchiveBytes)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Archive storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", storageCfg.ModeSource(),
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return bucket, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ArchiveStorageConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.StorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.StorageConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.StorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.StorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case gcp.StorageConfigErrorMissingBucket:
			code = StorageProviderBootstrapErrorMissingBucket
		}
	}
	mode := string(storageCfg.Mode)
	if cfgErr != nil && cfgErr.Mode != "" {
		mode = cfgErr.Mode
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         mode,
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
