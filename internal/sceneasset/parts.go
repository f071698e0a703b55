package sceneasset

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// groupingPrefix marks helper nodes the authoring tool emits to group
// meshes. They are never user-addressable parts.
const groupingPrefix = "Solid"

// PartDescriptor is one selectable sub-component of a model. ID is the
// node's position in the document's node array.
type PartDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	RawName     string `json:"rawName"`
	ModelID     string `json:"modelId"`
}

// PartCatalog is the ordered part list plus a fingerprint of the node list
// it was built from.
type PartCatalog struct {
	Parts       []PartDescriptor
	Fingerprint string
}

// ExtractParts builds the catalog from doc's nodes in array order. IDs are
// positional, so a backend that reorders nodes changes what a saved ID
// points at; Fingerprint lets callers detect that.
func ExtractParts(doc *GLTFDocument, modelID string) PartCatalog {
	if doc == nil {
		return PartCatalog{Parts: []PartDescriptor{}, Fingerprint: fingerprintNames(nil)}
	}
	parts := make([]PartDescriptor, 0, len(doc.Nodes))
	names := make([]string, 0, len(doc.Nodes))
	for i, node := range doc.Nodes {
		names = append(names, node.Name)
		if strings.HasPrefix(node.Name, groupingPrefix) {
			continue
		}
		parts = append(parts, PartDescriptor{
			ID:          strconv.Itoa(i),
			DisplayName: displayName(node, i),
			RawName:     node.Name,
			ModelID:     modelID,
		})
	}
	return PartCatalog{Parts: parts, Fingerprint: fingerprintNames(names)}
}

func displayName(node GLTFNode, index int) string {
	if d := node.Description(); d != "" {
		return d
	}
	if node.Name != "" {
		return node.Name
	}
	return "Node_" + strconv.Itoa(index)
}

func fingerprintNames(names []string) string {
	h := sha256.New()
	for _, n := range names {
		_, _ = h.Write([]byte(n))
		_, _ = h.Write([]byte{0})
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[:16]
}

// FindPart returns the part whose ID or raw name equals ref. Chat mentions
// use raw names; selections use IDs.
func FindPart(parts []PartDescriptor, ref string) (PartDescriptor, bool) {
	for _, p := range parts {
		if p.ID == ref {
			return p, true
		}
	}
	for _, p := range parts {
		if p.RawName != "" && p.RawName == ref {
			return p, true
		}
	}
	return PartDescriptor{}, false
}
