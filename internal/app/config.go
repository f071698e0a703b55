package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-viewer/internal/platform/envutil"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

const (
	ArchiveSourceHTTP = "http"
	ArchiveSourceGCS  = "gcs"

	defaultBlobURLPrefix = "/api/viewer/blobs/"
)

type Config struct {
	Port    string
	LogMode string

	ArchiveSource     string
	SceneAPIBaseURL   string
	SceneAPIToken     string
	FetchTimeout      time.Duration
	MaxArchiveBytes   int64
	MaxExtractedBytes int64

	GCSBucket           string
	GCSPrefix           string
	ObjectStorageMode   string
	StorageEmulatorHost string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisSelectionTTL time.Duration

	BlobURLPrefix  string
	AllowedOrigins []string
	MetricsAddr    string

	// JWTSecret verifies viewer access tokens. Env only; never read from
	// the YAML file.
	JWTSecret string
}

// fileConfig is the optional YAML overlay named by VIEWER_CONFIG_FILE.
// Environment variables win over it.
type fileConfig struct {
	Port    string `yaml:"port"`
	LogMode string `yaml:"log_mode"`
	Scene   struct {
		Source            string `yaml:"source"`
		APIBaseURL        string `yaml:"api_base_url"`
		FetchTimeout      string `yaml:"fetch_timeout"`
		MaxArchiveBytes   int64  `yaml:"max_archive_bytes"`
		MaxExtractedBytes int64  `yaml:"max_extracted_bytes"`
		GCSBucket         string `yaml:"gcs_bucket"`
		GCSPrefix         string `yaml:"gcs_prefix"`
	} `yaml:"scene"`
	Redis struct {
		Addr         string `yaml:"addr"`
		DB           int    `yaml:"db"`
		SelectionTTL string `yaml:"selection_ttl"`
	} `yaml:"redis"`
	BlobURLPrefix  string   `yaml:"blob_url_prefix"`
	AllowedOrigins []string `yaml:"cors_allowed_origins"`
}

func defaultConfig() Config {
	return Config{
		Port:              "8080",
		LogMode:           "development",
		ArchiveSource:     ArchiveSourceHTTP,
		FetchTimeout:      sceneasset.DefaultFetchTimeout,
		MaxArchiveBytes:   sceneasset.DefaultMaxArchiveBytes,
		GCSPrefix:         "scenes",
		RedisSelectionTTL: 30 * 24 * time.Hour,
		BlobURLPrefix:     defaultBlobURLPrefix,
	}
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("VIEWER_CONFIG_FILE", ""); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return Config{}, err
		}
		log.Info("Loaded config file", "path", path)
	}

	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.ArchiveSource = strings.ToLower(envutil.String("SCENE_ARCHIVE_SOURCE", cfg.ArchiveSource))
	cfg.SceneAPIBaseURL = envutil.String("SCENE_API_BASE_URL", cfg.SceneAPIBaseURL)
	cfg.SceneAPIToken = envutil.String("SCENE_API_TOKEN", cfg.SceneAPIToken)
	cfg.FetchTimeout = envutil.Duration("SCENE_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.MaxArchiveBytes = envutil.Int64("SCENE_MAX_ARCHIVE_BYTES", cfg.MaxArchiveBytes)
	cfg.MaxExtractedBytes = envutil.Int64("SCENE_MAX_EXTRACTED_BYTES", cfg.MaxExtractedBytes)
	if cfg.MaxExtractedBytes <= 0 {
		cfg.MaxExtractedBytes = 4 * cfg.MaxArchiveBytes
	}
	cfg.GCSBucket = envutil.String("SCENE_GCS_BUCKET", cfg.GCSBucket)
	cfg.GCSPrefix = envutil.String("SCENE_GCS_PREFIX", cfg.GCSPrefix)
	cfg.ObjectStorageMode = envutil.String("OBJECT_STORAGE_MODE", cfg.ObjectStorageMode)
	cfg.StorageEmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.StorageEmulatorHost)
	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envutil.Int("REDIS_DB", cfg.RedisDB)
	cfg.RedisSelectionTTL = envutil.Duration("REDIS_SELECTION_TTL", cfg.RedisSelectionTTL)
	cfg.BlobURLPrefix = envutil.String("BLOB_URL_PREFIX", cfg.BlobURLPrefix)
	cfg.AllowedOrigins = envutil.List("CORS_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)
	cfg.JWTSecret = envutil.String("JWT_SECRET", "")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyConfigFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setString(&cfg.Port, fc.Port)
	setString(&cfg.LogMode, fc.LogMode)
	setString(&cfg.ArchiveSource, fc.Scene.Source)
	setString(&cfg.SceneAPIBaseURL, fc.Scene.APIBaseURL)
	setString(&cfg.GCSBucket, fc.Scene.GCSBucket)
	setString(&cfg.GCSPrefix, fc.Scene.GCSPrefix)
	setString(&cfg.RedisAddr, fc.Redis.Addr)
	setString(&cfg.BlobURLPrefix, fc.BlobURLPrefix)
	if fc.Scene.MaxArchiveBytes > 0 {
		cfg.MaxArchiveBytes = fc.Scene.MaxArchiveBytes
	}
	if fc.Scene.MaxExtractedBytes > 0 {
		cfg.MaxExtractedBytes = fc.Scene.MaxExtractedBytes
	}
	if fc.Redis.DB > 0 {
		cfg.RedisDB = fc.Redis.DB
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.Scene.FetchTimeout != "" {
		d, err := time.ParseDuration(fc.Scene.FetchTimeout)
		if err != nil {
			return fmt.Errorf("scene.fetch_timeout: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if fc.Redis.SelectionTTL != "" {
		d, err := time.ParseDuration(fc.Redis.SelectionTTL)
		if err != nil {
			return fmt.Errorf("redis.selection_ttl: %w", err)
		}
		cfg.RedisSelectionTTL = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func (c Config) validate() error {
	switch c.ArchiveSource {
	case ArchiveSourceHTTP:
		if strings.TrimSpace(c.SceneAPIBaseURL) == "" {
			return fmt.Errorf("SCENE_API_BASE_URL is required when SCENE_ARCHIVE_SOURCE=%s", ArchiveSourceHTTP)
		}
	case ArchiveSourceGCS:
	default:
		return fmt.Errorf("invalid SCENE_ARCHIVE_SOURCE=%q (allowed: %q, %q)", c.ArchiveSource, ArchiveSourceHTTP, ArchiveSourceGCS)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("SCENE_FETCH_TIMEOUT must be positive")
	}
	return nil
}
