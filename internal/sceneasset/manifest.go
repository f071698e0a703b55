package sceneasset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Manifest is either a *PointerManifest or a *ListManifest.
type Manifest interface {
	shape() string
}

// PointerManifest names the single entry for each variant; every other
// entry is an untyped companion file.
type PointerManifest struct {
	Default string
	Custom  string
}

func (*PointerManifest) shape() string { return "pointer" }

type EntryType string

const (
	EntryTypeModel    EntryType = "model"
	EntryTypeTexture  EntryType = "texture"
	EntryTypeMetadata EntryType = "metadata"
)

type ListEntry struct {
	Filename string    `json:"filename"`
	Type     EntryType `json:"type"`
	Size     int64     `json:"size"`
}

// ListManifest is the legacy shape where every file is declared and typed.
type ListManifest struct {
	Files []ListEntry
}

func (*ListManifest) shape() string { return "list" }

// ManifestShape returns "pointer" or "list".
func ManifestShape(m Manifest) string {
	if m == nil {
		return ""
	}
	return m.shape()
}

// ParseManifest sniffs the top-level keys to pick a shape. There is no
// version field; a document matching neither shape (or both) is rejected.
func ParseManifest(raw []byte) (Manifest, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, newError(KindInvalidManifest, "manifest is not a JSON object", err)
	}
	if top == nil {
		return nil, newError(KindInvalidManifest, "manifest is null", nil)
	}

	filesRaw, hasFiles := top["files"]
	defRaw, hasDefault := top["default"]
	customRaw, hasCustom := top["custom"]

	switch {
	case hasFiles && (hasDefault || hasCustom):
		return nil, newError(KindInvalidManifest, "manifest mixes pointer and list keys", nil)
	case hasFiles:
		return parseListManifest(filesRaw)
	case hasDefault || hasCustom:
		m := &PointerManifest{}
		var err error
		if m.Default, err = optionalString(defRaw); err != nil {
			return nil, newError(KindInvalidManifest, `"default" must be a string`, err)
		}
		if m.Custom, err = optionalString(customRaw); err != nil {
			return nil, newError(KindInvalidManifest, `"custom" must be a string`, err)
		}
		return m, nil
	default:
		return nil, newError(KindInvalidManifest, "manifest has neither default/custom nor files", nil)
	}
}

func parseListManifest(raw json.RawMessage) (*ListManifest, error) {
	var files []ListEntry
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, newError(KindInvalidManifest, `"files" must be an array of entries`, err)
	}
	out := &ListManifest{Files: make([]ListEntry, 0, len(files))}
	for i, f := range files {
		f.Filename = strings.TrimSpace(f.Filename)
		if f.Filename == "" {
			return nil, newError(KindInvalidManifest, fmt.Sprintf("files[%d] has no filename", i), nil)
		}
		f.Type = EntryType(strings.ToLower(strings.TrimSpace(string(f.Type))))
		out.Files = append(out.Files, f)
	}
	return out, nil
}

func optionalString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// variantRole classifies a list-manifest filename by its lowercase base name.
func variantRole(filename string) (isDefault, isCustom bool) {
	switch strings.ToLower(baseName(filename)) {
	case "default.gltf", "default.glb":
		return true, false
	case "custom.gltf", "custom.glb":
		return false, true
	default:
		return false, false
	}
}
