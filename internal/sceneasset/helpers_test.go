package sceneasset

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

type zipEntry struct {
	name string
	body string
}

// buildZip keeps entry order, which the pointer strategy iterates in.
func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("zip write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

type stubSource struct {
	mu       sync.Mutex
	data     []byte
	filename string
	err      error
	calls    int
	// after runs once the archive is ready, before it is returned.
	after func()
}

func (s *stubSource) FetchArchive(ctx context.Context, sceneID string, target Target) (*SceneArchive, error) {
	s.mu.Lock()
	s.calls++
	data, filename, err, after := s.data, s.filename, s.err, s.after
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if after != nil {
		after()
	}
	return &SceneArchive{SceneID: sceneID, Target: target, Data: data, Filename: filename}, nil
}

func newTestPipeline(t *testing.T, src ArchiveSource) *Pipeline {
	t.Helper()
	p, err := New(logger.NewNop(), Config{
		Source:     src,
		Registry:   NewBlobRegistry("blob:test/"),
		Resolution: &ResolutionContext{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

const robotCustomGLTF = `{
  "asset": {"version": "2.0"},
  "scenes": [{"name": "Robot Arm"}],
  "nodes": [
    {"name": "Solid_1"},
    {"name": "Arm", "extras": {"description": "로봇 팔"}},
    {"name": "Base", "extras": {"description": "받침대"}}
  ],
  "buffers": [{"uri": "custom.bin"}],
  "images": [{"uri": "textures/wood.png"}]
}`

const robotDefaultGLTF = `{"asset":{"version":"2.0"},"buffers":[{"uri":"default.bin"}]}`

func robotArchive(t *testing.T, manifest string) []byte {
	t.Helper()
	return buildZip(t,
		zipEntry{"manifest.json", manifest},
		zipEntry{"default.gltf", robotDefaultGLTF},
		zipEntry{"default.bin", "\x00\x00\x80\x3f"},
		zipEntry{"custom.gltf", robotCustomGLTF},
		zipEntry{"custom.bin", "\x00\x00\x00\x40"},
		zipEntry{"textures/wood.png", "not really a png"},
	)
}
