package sceneasset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

const pointerManifest = `{"default":"default.gltf","custom":"custom.gltf"}`

const listManifest = `{"files":[
  {"filename":"default.gltf","type":"model","size":0},
  {"filename":"default.bin","type":"binary"},
  {"filename":"custom.gltf","type":"Model"},
  {"filename":"custom.bin","type":"binary"},
  {"filename":"textures/wood.png","type":"texture"}
]}`

func partNames(parts []PartDescriptor) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.DisplayName)
	}
	return out
}

func partIDs(parts []PartDescriptor) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.ID)
	}
	return out
}

func TestLoadHappyPath(t *testing.T) {
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p := newTestPipeline(t, src)

	res, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Default == nil || res.Custom == nil {
		t.Fatalf("both handles expected: default=%v custom=%v", res.Default, res.Custom)
	}
	if got := strings.Join(partNames(res.Parts), ","); got != "로봇 팔,받침대" {
		t.Fatalf("display names: want=%q got=%q", "로봇 팔,받침대", got)
	}
	if got := strings.Join(partIDs(res.Parts), ","); got != "1,2" {
		t.Fatalf("ids: want=%q got=%q", "1,2", got)
	}
	for _, part := range res.Parts {
		if part.ModelID != "42" {
			t.Fatalf("model id: want=%q got=%q", "42", part.ModelID)
		}
	}
	if res.ManifestShape != "pointer" {
		t.Fatalf("shape: want=pointer got=%q", res.ManifestShape)
	}
	if res.DisplayName != "Robot Arm" {
		t.Fatalf("display name: want=%q got=%q", "Robot Arm", res.DisplayName)
	}
	if len(res.Resources) != 5 {
		t.Fatalf("resources: want=5 got=%d", len(res.Resources))
	}
	if p.Current() != res {
		t.Fatalf("result should be current")
	}
	if !p.Resolution().IsActive(res.Table()) {
		t.Fatalf("resolver table not installed")
	}

	resolution := p.Resolution()
	for _, uri := range []string{"custom.bin", "./custom.bin", "textures/wood.png", "wood.png", "textures%2Fwood.png", "custom.bin?v=3"} {
		if got := resolution.Resolve(uri); !strings.HasPrefix(got, "blob:test/") {
			t.Fatalf("resolve %q: got %q", uri, got)
		}
	}
	if got := resolution.Resolve("missing.bin"); got != "missing.bin" {
		t.Fatalf("miss should pass through: got %q", got)
	}
	if got := resolution.Resolve(res.Custom.Name); got != res.Custom.URL {
		t.Fatalf("custom resolve: want=%q got=%q", res.Custom.URL, got)
	}
}

func TestResolvedURLsServeOriginalBytes(t *testing.T) {
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p := newTestPipeline(t, src)
	res, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"default.gltf", robotDefaultGLTF},
		{"custom.gltf", robotCustomGLTF},
		{"custom.bin", "\x00\x00\x00\x40"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := res.Resolve(tc.name)
			h, ok := p.Registry().HandleFromURL(u)
			if !ok {
				t.Fatalf("resolve %q: %q is not a registry url", tc.name, u)
			}
			b, ok := p.Registry().Open(h)
			if !ok {
				t.Fatalf("open %q: handle not live", h)
			}
			defer b.Close()
			got, err := io.ReadAll(b)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, []byte(tc.want)) {
				t.Fatalf("bytes: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestLoadManifestShapesAgree(t *testing.T) {
	load := func(manifest string) *Result {
		p := newTestPipeline(t, &stubSource{data: robotArchive(t, manifest), filename: "robot.zip"})
		res, err := p.Load(context.Background(), "42", TargetBoth)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return res
	}
	ptr, list := load(pointerManifest), load(listManifest)

	if list.ManifestShape != "list" {
		t.Fatalf("shape: want=list got=%q", list.ManifestShape)
	}
	if list.Default == nil || list.Custom == nil {
		t.Fatalf("list manifest should yield both handles")
	}
	if strings.Join(partNames(ptr.Parts), ",") != strings.Join(partNames(list.Parts), ",") {
		t.Fatalf("catalogs differ: pointer=%v list=%v", partNames(ptr.Parts), partNames(list.Parts))
	}
	if ptr.Fingerprint != list.Fingerprint {
		t.Fatalf("fingerprints differ")
	}
	if ptr.DisplayName != "robot" || list.DisplayName != "robot" {
		t.Fatalf("served filename should name the model: %q %q", ptr.DisplayName, list.DisplayName)
	}
}

func TestLoadTargetFiltersHandles(t *testing.T) {
	p := newTestPipeline(t, &stubSource{data: robotArchive(t, pointerManifest)})
	res, err := p.Load(context.Background(), "42", TargetDefault)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Default == nil || res.Custom != nil {
		t.Fatalf("default only: got default=%v custom=%v", res.Default, res.Custom)
	}
	if len(res.Parts) != 2 {
		t.Fatalf("catalog still built from custom entry: got %d parts", len(res.Parts))
	}
}

func TestLoadMissingManifest(t *testing.T) {
	data := buildZip(t, zipEntry{"custom.gltf", robotCustomGLTF}, zipEntry{"custom.bin", "x"})
	p := newTestPipeline(t, &stubSource{data: data})

	_, err := p.Load(context.Background(), "42", TargetBoth)
	if !errors.Is(err, ErrMissingManifest) {
		t.Fatalf("want MissingManifest, got %v", err)
	}
	if p.Current() != nil || p.Resolution().Active() != nil {
		t.Fatalf("nothing should be installed")
	}
	if n := p.Registry().Len(); n != 0 {
		t.Fatalf("registry: want=0 got=%d", n)
	}
}

func TestLoadErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		src  *stubSource
		want Kind
	}{
		{"expired session", &stubSource{err: &Error{Kind: KindExpiredSession, Status: http.StatusUnauthorized}}, KindExpiredSession},
		{"upstream", &stubSource{err: upstreamFailure(http.StatusInternalServerError, "boom", nil)}, KindUpstreamFailure},
		{"not a zip", &stubSource{data: []byte("<html>login</html>")}, KindMalformedArchive},
		{"empty body", &stubSource{data: nil}, KindMalformedArchive},
		{"mixed manifest", &stubSource{data: buildZip(t, zipEntry{"manifest.json", `{"default":"a.gltf","files":[]}`})}, KindInvalidManifest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t, tc.src)
			_, err := p.Load(context.Background(), "42", TargetBoth)
			if got := KindOf(err); got != tc.want {
				t.Fatalf("kind: want=%q got=%q (%v)", tc.want, got, err)
			}
			if IsCancelled(err) {
				t.Fatalf("failure reported as cancellation")
			}
			if p.Registry().Len() != 0 {
				t.Fatalf("failed run left blobs behind")
			}
		})
	}
}

func TestLoadCancelledAfterFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &stubSource{data: robotArchive(t, pointerManifest), after: cancel}
	p := newTestPipeline(t, src)

	res, err := p.Load(ctx, "42", TargetBoth)
	if res != nil {
		t.Fatalf("cancelled run returned a result")
	}
	if !IsCancelled(err) {
		t.Fatalf("want cancellation, got %v", err)
	}
	if KindOf(err) != "" {
		t.Fatalf("cancellation must not carry an error kind: %v", err)
	}
	if p.Resolution().Active() != nil || p.Current() != nil {
		t.Fatalf("cancelled run installed a table")
	}
	if n := p.Registry().Len(); n != 0 {
		t.Fatalf("registry: want=0 got=%d", n)
	}
}

func TestLoadCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p := newTestPipeline(t, src)

	if _, err := p.Load(ctx, "42", TargetBoth); !IsCancelled(err) {
		t.Fatalf("want cancellation, got %v", err)
	}
	if src.calls != 0 {
		t.Fatalf("source should not be called: calls=%d", src.calls)
	}
}

func TestCancelledLoadKeepsPrevious(t *testing.T) {
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p := newTestPipeline(t, src)
	first, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.after = cancel
	if _, err := p.Load(ctx, "43", TargetBoth); !IsCancelled(err) {
		t.Fatalf("want cancellation, got %v", err)
	}
	if p.Current() != first || !p.Resolution().IsActive(first.Table()) {
		t.Fatalf("previous scene should stay installed")
	}
	if !p.Registry().Live(first.Custom.Handle) {
		t.Fatalf("previous handles should stay live")
	}
}

func TestFailedLoadRevokesPrevious(t *testing.T) {
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p := newTestPipeline(t, src)
	first, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src.data = []byte("garbage")
	if _, err := p.Load(context.Background(), "43", TargetBoth); KindOf(err) != KindMalformedArchive {
		t.Fatalf("want MalformedArchive, got %v", err)
	}
	if !first.Revoked() || p.Current() != nil || p.Resolution().Active() != nil {
		t.Fatalf("previous scene should be revoked after a failed load")
	}
	if p.Registry().Live(first.Custom.Handle) {
		t.Fatalf("previous handle still live")
	}
}

func TestFailedLoadClearsForeignTable(t *testing.T) {
	src := &stubSource{data: []byte("garbage")}
	p := newTestPipeline(t, src)
	foreign := NewResolverTable()
	foreign.Add("custom.bin", "blob:other/1")
	p.Resolution().Install(foreign)

	if _, err := p.Load(context.Background(), "43", TargetBoth); KindOf(err) != KindMalformedArchive {
		t.Fatalf("want MalformedArchive, got %v", err)
	}
	if p.Resolution().Active() != nil {
		t.Fatalf("resolver table should be cleared after a failed load")
	}
	if got := p.Resolution().Resolve("custom.bin"); got != "custom.bin" {
		t.Fatalf("resolve after failure: want=%q got=%q", "custom.bin", got)
	}
}

func TestLoadRejectsOversizedExtraction(t *testing.T) {
	data := buildZip(t,
		zipEntry{"manifest.json", `{"custom":"custom.gltf"}`},
		zipEntry{"custom.gltf", robotCustomGLTF},
		zipEntry{"huge.bin", strings.Repeat("\x00", 8<<20)},
	)
	if len(data) > 1<<20 {
		t.Fatalf("fixture should compress well below the budget: %d bytes", len(data))
	}
	p, err := New(logger.NewNop(), Config{
		Source:            &stubSource{data: data},
		Registry:          NewBlobRegistry("blob:test/"),
		Resolution:        &ResolutionContext{},
		MaxExtractedBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Load(context.Background(), "42", TargetBoth)
	if KindOf(err) != KindMalformedArchive {
		t.Fatalf("want MalformedArchive, got %v", err)
	}
	if n := p.Registry().Len(); n != 0 {
		t.Fatalf("registry: want=0 got=%d", n)
	}
	if p.Current() != nil || p.Resolution().Active() != nil {
		t.Fatalf("nothing should be installed")
	}
}

func TestLoadSupersedesPrevious(t *testing.T) {
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p := newTestPipeline(t, src)
	first, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := p.Load(context.Background(), "42", TargetCustom)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !first.Revoked() {
		t.Fatalf("first result should be revoked")
	}

	first.Revoke()
	if !p.Resolution().IsActive(second.Table()) {
		t.Fatalf("revoking a superseded result must not clear the active table")
	}
	if n := p.Registry().Len(); n != len(second.Resources) {
		t.Fatalf("registry: want=%d got=%d", len(second.Resources), n)
	}

	p.Unload()
	if n := p.Registry().Len(); n != 0 {
		t.Fatalf("registry after unload: want=0 got=%d", n)
	}
}

func TestResultRevokeOnlyClearsOwnTable(t *testing.T) {
	p := newTestPipeline(t, &stubSource{})
	archive := func() *SceneArchive {
		return &SceneArchive{SceneID: "42", Target: TargetBoth, Data: robotArchive(t, pointerManifest)}
	}
	r1, err := p.Materialize(context.Background(), archive())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	r2, err := p.Materialize(context.Background(), archive())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if p.Resolution().Active() != nil {
		t.Fatalf("Materialize must not install")
	}
	p.Resolution().Install(r2.Table())

	r1.Revoke()
	r1.Revoke()
	if !p.Resolution().IsActive(r2.Table()) {
		t.Fatalf("r2 table should stay active")
	}
	if got := r1.Resolve("custom.bin"); got != "custom.bin" {
		t.Fatalf("revoked result should not resolve: got %q", got)
	}
	if got := r2.Resolve("custom.bin"); !strings.HasPrefix(got, "blob:test/") {
		t.Fatalf("r2 resolve: got %q", got)
	}
	for _, res := range r1.Resources {
		if p.Registry().Live(res.Handle) {
			t.Fatalf("r1 handle %s still live", res.Name)
		}
	}

	r2.Revoke()
	if p.Resolution().Active() != nil {
		t.Fatalf("revoking the active result should clear the context")
	}
}

func TestLoadKeepsUndecodableModel(t *testing.T) {
	data := buildZip(t,
		zipEntry{"manifest.json", pointerManifest},
		zipEntry{"default.gltf", robotDefaultGLTF},
		zipEntry{"custom.gltf", `{"nodes": [`},
	)
	p := newTestPipeline(t, &stubSource{data: data})
	res, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Custom == nil {
		t.Fatalf("undecodable custom entry should still be materialized")
	}
	if len(res.Parts) != 0 {
		t.Fatalf("parts: want=0 got=%d", len(res.Parts))
	}
}

func TestLoadPointerToMissingEntry(t *testing.T) {
	data := buildZip(t,
		zipEntry{"manifest.json", `{"default":"default.gltf","custom":"nope.gltf"}`},
		zipEntry{"default.gltf", robotDefaultGLTF},
	)
	p := newTestPipeline(t, &stubSource{data: data})
	res, err := p.Load(context.Background(), "42", TargetBoth)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Default == nil || res.Custom != nil {
		t.Fatalf("want default only, got default=%v custom=%v", res.Default, res.Custom)
	}
	if res.DisplayName != "scene_42" {
		t.Fatalf("display name: want=%q got=%q", "scene_42", res.DisplayName)
	}
}
