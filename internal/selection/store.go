package selection

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("selection not found")

// Record is what gets persisted per viewer and scene. Fingerprint is the
// part catalog fingerprint the IDs were chosen against.
type Record struct {
	SceneID     string    `json:"sceneId"`
	PartIDs     []string  `json:"partIds"`
	Fingerprint string    `json:"fingerprint"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Store interface {
	Get(ctx context.Context, viewerKey, sceneID string) (*Record, error)
	Put(ctx context.Context, viewerKey string, rec *Record) error
	Delete(ctx context.Context, viewerKey, sceneID string) error
}

// MemoryStore keeps selections in process. Used when Redis is not
// configured and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]Record{}}
}

func memKey(viewerKey, sceneID string) string { return viewerKey + "\x00" + sceneID }

func (m *MemoryStore) Get(_ context.Context, viewerKey, sceneID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[memKey(viewerKey, sceneID)]
	if !ok {
		return nil, ErrNotFound
	}
	rec.PartIDs = append([]string(nil), rec.PartIDs...)
	return &rec, nil
}

func (m *MemoryStore) Put(_ context.Context, viewerKey string, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.PartIDs = append([]string(nil), rec.PartIDs...)
	m.recs[memKey(viewerKey, rec.SceneID)] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, viewerKey, sceneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, memKey(viewerKey, sceneID))
	return nil
}
