package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/selection"
)

const defaultSelectionTTL = 30 * 24 * time.Hour

type SelectionStoreConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// SelectionStore keeps part selections in Redis under
// {prefix}:selection:{viewerKey}:{sceneId}, refreshed on every write.
type SelectionStore struct {
	log    *logger.Logger
	rdb    goredis.Cmdable
	closer func() error
	prefix string
	ttl    time.Duration
}

var _ selection.Store = (*SelectionStore)(nil)

func NewSelectionStore(log *logger.Logger, cfg SelectionStoreConfig) (*SelectionStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := newSelectionStore(log, rdb, cfg)
	s.closer = rdb.Close
	return s, nil
}

func newSelectionStore(log *logger.Logger, rdb goredis.Cmdable, cfg SelectionStoreConfig) *SelectionStore {
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "viewer"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSelectionTTL
	}
	return &SelectionStore{
		log:    log.With("service", "RedisSelectionStore"),
		rdb:    rdb,
		closer: func() error { return nil },
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *SelectionStore) key(viewerKey, sceneID string) string {
	return fmt.Sprintf("%s:selection:%s:%s", s.prefix, viewerKey, sceneID)
}

func (s *SelectionStore) Get(ctx context.Context, viewerKey, sceneID string) (*selection.Record, error) {
	raw, err := s.rdb.Get(ctx, s.key(viewerKey, sceneID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, selection.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec selection.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.Warn("bad selection payload; treating as absent", "scene_id", sceneID, "error", err)
		return nil, selection.ErrNotFound
	}
	return &rec, nil
}

func (s *SelectionStore) Put(ctx context.Context, viewerKey string, rec *selection.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(viewerKey, rec.SceneID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SelectionStore) Delete(ctx context.Context, viewerKey, sceneID string) error {
	if err := s.rdb.Del(ctx, s.key(viewerKey, sceneID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *SelectionStore) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
