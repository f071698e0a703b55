package sceneasset

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

const ManifestName = "manifest.json"

// DefaultMaxExtractedBytes caps the decompressed bytes read from one archive.
const DefaultMaxExtractedBytes = 4 * DefaultMaxArchiveBytes

// Archive is a random-access view over a scene package.
type Archive struct {
	entries []*zip.File
	byName  map[string]*zip.File
	// remaining is the decompressed budget left for ReadEntry.
	remaining int64
}

// OpenArchive opens data as a ZIP container with the default extraction
// budget. data must stay unmodified while the Archive is in use.
func OpenArchive(data []byte) (*Archive, error) {
	return OpenArchiveLimit(data, DefaultMaxExtractedBytes)
}

// OpenArchiveLimit is OpenArchive with an explicit budget for the total
// decompressed size of every entry read. A non-positive limit uses the
// default.
func OpenArchiveLimit(data []byte, maxExtracted int64) (*Archive, error) {
	if maxExtracted <= 0 {
		maxExtracted = DefaultMaxExtractedBytes
	}
	if len(data) == 0 {
		return nil, newError(KindMalformedArchive, "empty archive", nil)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, newError(KindMalformedArchive, "not a zip container", err)
	}
	a := &Archive{byName: make(map[string]*zip.File, len(zr.File)), remaining: maxExtracted}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		a.entries = append(a.entries, f)
		if _, dup := a.byName[f.Name]; !dup {
			a.byName[f.Name] = f
		}
	}
	return a, nil
}

// Names returns every file entry name in archive order.
func (a *Archive) Names() []string {
	out := make([]string, 0, len(a.entries))
	for _, f := range a.entries {
		out = append(out, f.Name)
	}
	return out
}

func (a *Archive) Has(name string) bool {
	_, ok := a.byName[name]
	return ok
}

// Lookup finds an entry by exact name, then by name with a leading "./" or
// "/" removed.
func (a *Archive) Lookup(name string) (string, bool) {
	if _, ok := a.byName[name]; ok {
		return name, true
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
	if _, ok := a.byName[trimmed]; ok {
		return trimmed, true
	}
	return "", false
}

// ReadEntry returns a copy of an entry's decompressed bytes. Reads draw on
// the archive's extraction budget; exceeding it is a MalformedArchive.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	f, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, newError(KindMalformedArchive, fmt.Sprintf("open entry %q", name), err)
	}
	defer rc.Close()
	// The header size is untrusted; only use it as a capacity hint.
	hint := f.UncompressedSize64
	if hint > 64<<20 {
		hint = 64 << 20
	}
	if int64(hint) > a.remaining {
		hint = uint64(a.remaining)
	}
	buf := bytes.NewBuffer(make([]byte, 0, int(hint)))
	n, err := io.Copy(buf, io.LimitReader(rc, a.remaining+1))
	if err != nil {
		return nil, newError(KindMalformedArchive, fmt.Sprintf("read entry %q", name), err)
	}
	if n > a.remaining {
		a.remaining = 0
		return nil, newError(KindMalformedArchive, fmt.Sprintf("entry %q exceeds the extraction limit", name), nil)
	}
	a.remaining -= n
	return buf.Bytes(), nil
}

// Manifest returns the raw manifest.json bytes at the archive root.
func (a *Archive) Manifest() ([]byte, error) {
	if !a.Has(ManifestName) {
		return nil, newError(KindMissingManifest, "archive has no "+ManifestName, nil)
	}
	return a.ReadEntry(ManifestName)
}

func baseName(name string) string {
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}
