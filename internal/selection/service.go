package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

// Loaded is a saved selection as seen against the current catalog.
// Stale means the node list changed since the IDs were saved, so the
// positional IDs may now name different parts.
type Loaded struct {
	PartIDs []string `json:"partIds"`
	Stale   bool     `json:"stale"`
}

type WriteObserver interface {
	ObserveSelectionWrite(status string)
}

type Service struct {
	log   *logger.Logger
	store Store
	now   func() time.Time
	obs   WriteObserver
}

func NewService(log *logger.Logger, store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{log: log.With("service", "SelectionService"), store: store, now: time.Now}
}

func (s *Service) Observe(obs WriteObserver) { s.obs = obs }

func (s *Service) observeWrite(status string) {
	if s.obs != nil {
		s.obs.ObserveSelectionWrite(status)
	}
}

// Save persists ids chosen against parts. IDs not in the catalog are
// dropped; order follows the catalog.
func (s *Service) Save(ctx context.Context, viewerKey, sceneID string, ids []string, parts []sceneasset.PartDescriptor, fingerprint string) ([]string, error) {
	if strings.TrimSpace(viewerKey) == "" || strings.TrimSpace(sceneID) == "" {
		return nil, fmt.Errorf("viewer key and scene id required")
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[strings.TrimSpace(id)] = true
	}
	kept := make([]string, 0, len(ids))
	for _, p := range parts {
		if wanted[p.ID] {
			kept = append(kept, p.ID)
			delete(wanted, p.ID)
		}
	}
	if len(wanted) > 0 {
		s.log.Debug("Dropped unknown part ids", "scene_id", sceneID, "dropped", len(wanted))
	}
	rec := &Record{SceneID: sceneID, PartIDs: kept, Fingerprint: fingerprint, UpdatedAt: s.now().UTC()}
	if err := s.store.Put(ctx, viewerKey, rec); err != nil {
		s.observeWrite("error")
		return nil, fmt.Errorf("save selection: %w", err)
	}
	s.observeWrite("ok")
	return kept, nil
}

// Load returns the saved selection for sceneID. A missing record is an
// empty selection, not an error.
func (s *Service) Load(ctx context.Context, viewerKey, sceneID, fingerprint string) (Loaded, error) {
	rec, err := s.store.Get(ctx, viewerKey, sceneID)
	if errors.Is(err, ErrNotFound) {
		return Loaded{PartIDs: []string{}}, nil
	}
	if err != nil {
		return Loaded{}, fmt.Errorf("load selection: %w", err)
	}
	out := Loaded{PartIDs: rec.PartIDs}
	if out.PartIDs == nil {
		out.PartIDs = []string{}
	}
	if fingerprint != "" && rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		out.Stale = true
		s.log.Warn("Part catalog changed since selection was saved; ids are positional and may point at different parts",
			"scene_id", sceneID,
			"saved_fingerprint", rec.Fingerprint,
			"current_fingerprint", fingerprint,
		)
	}
	return out, nil
}

func (s *Service) Clear(ctx context.Context, viewerKey, sceneID string) error {
	return s.store.Delete(ctx, viewerKey, sceneID)
}
