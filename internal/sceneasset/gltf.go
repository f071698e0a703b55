package sceneasset

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GLTFDocument is the subset of a glTF 2.0 document the catalog needs.
type GLTFDocument struct {
	Asset  GLTFAsset   `json:"asset"`
	Scene  *int        `json:"scene,omitempty"`
	Scenes []GLTFScene `json:"scenes,omitempty"`
	Nodes  []GLTFNode  `json:"nodes,omitempty"`
	Images []GLTFURI   `json:"images,omitempty"`
	// Buffers carry the .bin references the resolver has to satisfy.
	Buffers []GLTFURI `json:"buffers,omitempty"`
}

type GLTFAsset struct {
	Version   string `json:"version"`
	Generator string `json:"generator,omitempty"`
}

type GLTFScene struct {
	Name  string `json:"name,omitempty"`
	Nodes []int  `json:"nodes,omitempty"`
}

type GLTFNode struct {
	Name        string          `json:"name,omitempty"`
	Children    []int           `json:"children,omitempty"`
	Mesh        *int            `json:"mesh,omitempty"`
	Matrix      *[16]float64    `json:"matrix,omitempty"`
	Translation *[3]float64     `json:"translation,omitempty"`
	Rotation    *[4]float64     `json:"rotation,omitempty"`
	Scale       *[3]float64     `json:"scale,omitempty"`
	Extras      json.RawMessage `json:"extras,omitempty"`
}

type GLTFURI struct {
	URI string `json:"uri,omitempty"`
}

// Description returns extras.description when it is a non-empty string.
func (n GLTFNode) Description() string {
	if len(n.Extras) == 0 {
		return ""
	}
	var extras map[string]json.RawMessage
	if err := json.Unmarshal(n.Extras, &extras); err != nil {
		return ""
	}
	raw, ok := extras["description"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// SceneName is the name of the document's default scene, if any.
func (d *GLTFDocument) SceneName() string {
	if d == nil || len(d.Scenes) == 0 {
		return ""
	}
	idx := 0
	if d.Scene != nil && *d.Scene >= 0 && *d.Scene < len(d.Scenes) {
		idx = *d.Scene
	}
	return strings.TrimSpace(d.Scenes[idx].Name)
}

// ExternalURIs lists buffer and image URIs that point outside the document.
func (d *GLTFDocument) ExternalURIs() []string {
	if d == nil {
		return nil
	}
	var out []string
	for _, refs := range [][]GLTFURI{d.Buffers, d.Images} {
		for _, r := range refs {
			if r.URI != "" && !strings.HasPrefix(r.URI, "data:") {
				out = append(out, r.URI)
			}
		}
	}
	return out
}

func ParseGLTFJSON(raw []byte) (*GLTFDocument, error) {
	var doc GLTFDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

const (
	glbMagic       = 0x46546C67 // "glTF"
	glbVersion     = 2
	glbChunkJSON   = 0x4E4F534A // "JSON"
	glbHeaderBytes = 12
)

var errNotGLB = errors.New("not a glb container")

// ParseGLB decodes the JSON chunk of a binary glTF container. The BIN chunk
// is left to the renderer.
func ParseGLB(raw []byte) (*GLTFDocument, error) {
	if len(raw) < glbHeaderBytes+8 {
		return nil, errNotGLB
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != glbMagic {
		return nil, errNotGLB
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != glbVersion {
		return nil, fmt.Errorf("unsupported glb version %d", v)
	}
	total := binary.LittleEndian.Uint32(raw[8:12])
	if int(total) > len(raw) {
		return nil, fmt.Errorf("glb declares %d bytes, have %d", total, len(raw))
	}
	chunkLen := binary.LittleEndian.Uint32(raw[12:16])
	chunkType := binary.LittleEndian.Uint32(raw[16:20])
	if chunkType != glbChunkJSON {
		return nil, fmt.Errorf("first glb chunk is 0x%08x, want JSON", chunkType)
	}
	start := glbHeaderBytes + 8
	end := start + int(chunkLen)
	if chunkLen > total || end > len(raw) {
		return nil, fmt.Errorf("glb json chunk overruns container")
	}
	return ParseGLTFJSON(raw[start:end])
}

// parseModel decodes a model entry by extension. ok is false for entries
// that are not scene-graph documents.
func parseModel(name string, raw []byte) (doc *GLTFDocument, ok bool, err error) {
	switch MIMETypeFor(name) {
	case MIMEGLTFJSON:
		doc, err = ParseGLTFJSON(raw)
		return doc, true, err
	case MIMEGLTFBinary:
		doc, err = ParseGLB(raw)
		return doc, true, err
	default:
		return nil, false, nil
	}
}
