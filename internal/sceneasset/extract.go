package sceneasset

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

// extraction is what either manifest strategy produces.
type extraction struct {
	shape      string
	m          *materializer
	defaultRes *Resource
	customRes  *Resource
	defaultDoc *GLTFDocument
	customDoc  *GLTFDocument
	catalog    PartCatalog
	hasCatalog bool
}

func extract(ctx context.Context, log *logger.Logger, reg *BlobRegistry, a *Archive, manifest Manifest, modelID string) (*extraction, error) {
	out := &extraction{shape: ManifestShape(manifest), m: newMaterializer(log, reg)}
	var err error
	switch mf := manifest.(type) {
	case *PointerManifest:
		err = extractPointer(ctx, log, a, mf, modelID, out)
	case *ListManifest:
		err = extractList(ctx, log, a, mf, modelID, out)
	default:
		err = newError(KindInvalidManifest, fmt.Sprintf("unsupported manifest %T", manifest), nil)
	}
	if err != nil {
		out.m.revokeAll()
		return nil, err
	}
	return out, nil
}

// extractPointer materializes every entry; the manifest only says which
// entries are the default and custom documents.
func extractPointer(ctx context.Context, log *logger.Logger, a *Archive, mf *PointerManifest, modelID string, out *extraction) error {
	defaultName, hasDefault := resolvePointer(log, a, "default", mf.Default)
	customName, hasCustom := resolvePointer(log, a, "custom", mf.Custom)

	for _, name := range a.Names() {
		if name == ManifestName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := a.ReadEntry(name)
		if err != nil {
			return err
		}
		res := out.m.add(name, data)
		isDefault := hasDefault && name == defaultName
		isCustom := hasCustom && name == customName
		if isDefault {
			out.defaultRes = res
		}
		if isCustom {
			out.customRes = res
		}
		out.decodeModel(log, name, data, isDefault, isCustom, modelID)
	}
	return nil
}

func resolvePointer(log *logger.Logger, a *Archive, role, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	canonical, ok := a.Lookup(name)
	if !ok {
		log.Warn("Manifest pointer names a missing entry", "role", role, "entry", name)
		return "", false
	}
	return canonical, true
}

// extractList materializes only declared files. Declared files missing from
// the archive are skipped: the manifest selects entries, it does not promise
// completeness.
func extractList(ctx context.Context, log *logger.Logger, a *Archive, mf *ListManifest, modelID string, out *extraction) error {
	missing := 0
	for _, f := range mf.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, ok := a.Lookup(f.Filename)
		if !ok {
			missing++
			log.Warn("Manifest lists a file absent from the archive", "entry", f.Filename, "type", f.Type, "declared_size", f.Size)
			continue
		}
		if _, seen := out.m.byName[name]; seen {
			continue
		}
		data, err := a.ReadEntry(name)
		if err != nil {
			return err
		}
		if f.Size > 0 && int64(len(data)) != f.Size {
			log.Debug("Manifest size differs from entry", "entry", name, "declared_size", f.Size, "actual_size", len(data))
		}
		res := out.m.add(name, data)

		isDefault, isCustom := variantRole(name)
		if isDefault && out.defaultRes != nil {
			log.Warn("Second default model ignored", "entry", name, "kept", out.defaultRes.Name)
			isDefault = false
		}
		if isCustom && out.customRes != nil {
			log.Warn("Second custom model ignored", "entry", name, "kept", out.customRes.Name)
			isCustom = false
		}
		if isDefault {
			out.defaultRes = res
		}
		if isCustom {
			out.customRes = res
		}
		out.decodeModel(log, name, data, isDefault, isCustom, modelID)
	}
	if missing > 0 {
		log.Warn("Manifest and archive disagree", "missing_entries", missing, "declared_entries", len(mf.Files))
	}
	return nil
}

// decodeModel parses scene-graph documents. A broken document still stays
// materialized; it only contributes nothing to the catalog.
func (out *extraction) decodeModel(log *logger.Logger, name string, data []byte, isDefault, isCustom bool, modelID string) {
	doc, isModel, err := parseModel(name, data)
	if !isModel {
		return
	}
	if err != nil {
		w := PartialDecodeWarning{Entry: name, Err: err}
		log.Warn("Scene graph decode failed; entry kept without parts", "entry", name, "custom", isCustom, "error", w.Error())
		return
	}
	if isDefault {
		out.defaultDoc = doc
	}
	if isCustom {
		out.customDoc = doc
		out.catalog = ExtractParts(doc, modelID)
		out.hasCatalog = true
	}
}
