package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

// ObjectAttrs is the part of the object metadata the archive source reads.
type ObjectAttrs struct {
	Size               int64
	ContentType        string
	ContentDisposition string
}

// objectStore is the slice of the storage client SceneBucket needs.
type objectStore interface {
	Attrs(ctx context.Context, bucket, key string) (*ObjectAttrs, error)
	NewReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Close() error
}

var errObjectNotFound = errors.New("object not found")

type gcsStore struct {
	client *storage.Client
}

func (s *gcsStore) Attrs(ctx context.Context, bucket, key string) (*ObjectAttrs, error) {
	a, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, errObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ObjectAttrs{Size: a.Size, ContentType: a.ContentType, ContentDisposition: a.ContentDisposition}, nil
}

func (s *gcsStore) NewReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errObjectNotFound
	}
	return r, err
}

func (s *gcsStore) Close() error { return s.client.Close() }

// SceneBucket serves scene packages straight from object storage, for
// deployments where the export job writes archives to a bucket instead of
// the scene API streaming them.
type SceneBucket struct {
	log      *logger.Logger
	store    objectStore
	bucket   string
	prefix   string
	creds    sceneasset.CredentialSource
	maxBytes int64
	now      func() time.Time
}

var _ sceneasset.ArchiveSource = (*SceneBucket)(nil)

func NewSceneBucket(ctx context.Context, log *logger.Logger, cfg ArchiveStorageConfig, creds sceneasset.CredentialSource, maxBytes int64) (*SceneBucket, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateArchiveStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate archive storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	sb := newSceneBucket(log, &gcsStore{client: client}, cfg, creds, maxBytes)
	sb.log.Info("Scene archive bucket initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
	)
	return sb, nil
}

func newSceneBucket(log *logger.Logger, store objectStore, cfg ArchiveStorageConfig, creds sceneasset.CredentialSource, maxBytes int64) *SceneBucket {
	if maxBytes <= 0 {
		maxBytes = sceneasset.DefaultMaxArchiveBytes
	}
	return &SceneBucket{
		log:      log.With("service", "SceneBucket"),
		store:    store,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		creds:    creds,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

func newStorageClientForMode(ctx context.Context, cfg ArchiveStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := credentialOptions()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &StorageConfigError{Code: StorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

// ObjectKey is {prefix}/{sceneId}/{target}.zip.
func (b *SceneBucket) ObjectKey(sceneID string, target sceneasset.Target) string {
	return path.Join(b.prefix, sceneID, string(target)+".zip")
}

func (b *SceneBucket) FetchArchive(ctx context.Context, sceneID string, target sceneasset.Target) (*sceneasset.SceneArchive, error) {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" || strings.ContainsAny(sceneID, "/\\") {
		return nil, &sceneasset.Error{Kind: sceneasset.KindInvalidRequest, Message: fmt.Sprintf("invalid scene id %q", sceneID)}
	}
	if !target.Valid() {
		return nil, &sceneasset.Error{Kind: sceneasset.KindInvalidRequest, Message: fmt.Sprintf("unknown target %q", target)}
	}
	if b.creds != nil {
		tok, err := b.creds.Token(ctx)
		if sceneasset.KindOf(err) != "" {
			return nil, err
		}
		if err != nil || strings.TrimSpace(tok) == "" {
			return nil, &sceneasset.Error{Kind: sceneasset.KindUnauthenticated, Message: "no bearer credential available", Err: err}
		}
		if err := sceneasset.CheckExpiry(tok, b.now()); err != nil {
			b.log.Info("Bearer token expired before read", "scene_id", sceneID)
			return nil, err
		}
	}

	key := b.ObjectKey(sceneID, target)
	attrs, err := b.store.Attrs(ctx, b.bucket, key)
	if err != nil {
		return nil, b.storageError(ctx, key, err)
	}
	if attrs.Size > b.maxBytes {
		return nil, &sceneasset.Error{Kind: sceneasset.KindUpstreamFailure, Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf("archive %s is %d bytes", key, attrs.Size)}
	}
	rc, err := b.store.NewReader(ctx, b.bucket, key)
	if err != nil {
		return nil, b.storageError(ctx, key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, b.maxBytes+1))
	if err != nil {
		return nil, b.storageError(ctx, key, err)
	}
	if int64(len(data)) > b.maxBytes {
		return nil, &sceneasset.Error{Kind: sceneasset.KindUpstreamFailure, Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf("archive %s exceeds %d bytes", key, b.maxBytes)}
	}

	filename := sceneasset.FilenameFromDisposition(attrs.ContentDisposition)
	if filename == "" {
		filename = sceneasset.FallbackFilename(sceneID)
	}
	b.log.Debug("Read scene archive from bucket", "scene_id", sceneID, "target", target, "key", key, "bytes", len(data))
	return &sceneasset.SceneArchive{SceneID: sceneID, Target: target, Data: data, Filename: filename}, nil
}

func (b *SceneBucket) storageError(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, errObjectNotFound) {
		return &sceneasset.Error{Kind: sceneasset.KindUpstreamFailure, Status: http.StatusNotFound, Message: "no archive at " + key}
	}
	return &sceneasset.Error{Kind: sceneasset.KindUpstreamFailure, Message: "object storage read failed", Err: err}
}

func (b *SceneBucket) Close() error {
	return b.store.Close()
}

// credentialOptions picks the service account for the archive bucket:
// SCENE_GCS_CREDENTIALS_JSON, then the standard GOOGLE_APPLICATION_CREDENTIALS
// variables (inline JSON or a path). Nil means application defaults.
func credentialOptions() []option.ClientOption {
	for _, name := range []string{
		"SCENE_GCS_CREDENTIALS_JSON",
		"GOOGLE_APPLICATION_CREDENTIALS_JSON",
		"GOOGLE_APPLICATION_CREDENTIALS",
	} {
		creds := strings.TrimSpace(os.Getenv(name))
		if creds == "" {
			continue
		}
		if strings.HasPrefix(creds, "{") {
			return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
		}
		return []option.ClientOption{option.WithCredentialsFile(creds)}
	}
	return nil
}
