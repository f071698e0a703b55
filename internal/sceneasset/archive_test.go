package sceneasset

import (
	"errors"
	"strings"
	"testing"
)

func TestOpenArchive(t *testing.T) {
	data := buildZip(t,
		zipEntry{"manifest.json", `{"custom":"custom.gltf"}`},
		zipEntry{"models/", ""},
		zipEntry{"models/custom.gltf", "{}"},
	)
	a, err := OpenArchive(data)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if got := strings.Join(a.Names(), ","); got != "manifest.json,models/custom.gltf" {
		t.Fatalf("names (directories skipped): got %q", got)
	}
	if name, ok := a.Lookup("./models/custom.gltf"); !ok || name != "models/custom.gltf" {
		t.Fatalf("Lookup: got %q %v", name, ok)
	}
	raw, err := a.Manifest()
	if err != nil || !strings.Contains(string(raw), "custom") {
		t.Fatalf("Manifest: %q %v", raw, err)
	}
}

func TestOpenArchiveErrors(t *testing.T) {
	if _, err := OpenArchive(nil); !errors.Is(err, ErrMalformedArchive) {
		t.Fatalf("empty: want MalformedArchive, got %v", err)
	}
	if _, err := OpenArchive([]byte("PK\x03\x04 truncated")); !errors.Is(err, ErrMalformedArchive) {
		t.Fatalf("truncated: want MalformedArchive, got %v", err)
	}
	a, err := OpenArchive(buildZip(t, zipEntry{"custom.gltf", "{}"}))
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if _, err := a.Manifest(); !errors.Is(err, ErrMissingManifest) {
		t.Fatalf("want MissingManifest, got %v", err)
	}
}

func TestReadEntryExtractionBudget(t *testing.T) {
	data := buildZip(t,
		zipEntry{"a.bin", strings.Repeat("a", 600)},
		zipEntry{"b.bin", strings.Repeat("b", 600)},
	)
	a, err := OpenArchiveLimit(data, 1000)
	if err != nil {
		t.Fatalf("OpenArchiveLimit: %v", err)
	}
	if got, err := a.ReadEntry("a.bin"); err != nil || len(got) != 600 {
		t.Fatalf("first entry: len=%d err=%v", len(got), err)
	}
	// The budget is shared across entries.
	if _, err := a.ReadEntry("b.bin"); !errors.Is(err, ErrMalformedArchive) {
		t.Fatalf("second entry: want MalformedArchive, got %v", err)
	}
}
