package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-viewer/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
	"github.com/yungbote/neurobridge-viewer/internal/selection"
)

type fakeSource struct {
	data []byte
	err  error
}

func (f *fakeSource) FetchArchive(ctx context.Context, sceneID string, target sceneasset.Target) (*sceneasset.SceneArchive, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sceneasset.SceneArchive{SceneID: sceneID, Target: target, Data: f.data, Filename: "robot.zip"}, nil
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const customGLTF = `{"asset":{"version":"2.0"},"nodes":[{"name":"Gear"},{"name":"Solid1"},{"name":"node_12","extras":{"description":"받침대"}}],"buffers":[{"uri":"custom.bin"}]}`

type testEnv struct {
	router   *gin.Engine
	pipeline *sceneasset.Pipeline
	registry *sceneasset.BlobRegistry
	source   *fakeSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	src := &fakeSource{data: buildZip(t, map[string]string{
		"manifest.json": `{"default":"default.gltf","custom":"custom.gltf"}`,
		"default.gltf":  `{"asset":{"version":"2.0"},"nodes":[{"name":"Body"}]}`,
		"custom.gltf":   customGLTF,
		"custom.bin":    "\x00\x01\x02\x03",
	})}
	reg := sceneasset.NewBlobRegistry("/api/viewer/blobs/")
	resolution := &sceneasset.ResolutionContext{}
	p, err := sceneasset.New(log, sceneasset.Config{Source: src, Registry: reg, Resolution: resolution})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	h := NewViewerHandler(log, p, reg, resolution, selection.NewService(log, nil))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if v := c.GetHeader("X-Test-Viewer"); v != "" {
			c.Request = c.Request.WithContext(ctxutil.WithViewerKey(c.Request.Context(), v))
		}
		c.Next()
	})
	r.POST("/api/viewer/scenes/:id/load", h.LoadScene)
	r.GET("/api/viewer/active", h.GetActive)
	r.DELETE("/api/viewer/active", h.UnloadActive)
	r.GET("/api/viewer/resolve", h.Resolve)
	r.GET("/api/viewer/blobs/:handle", h.ServeBlob)
	r.GET("/api/viewer/assets/*path", h.ServeAsset)
	r.GET("/api/viewer/scenes/:id/selection", h.GetSelection)
	r.PUT("/api/viewer/scenes/:id/selection", h.PutSelection)
	return &testEnv{router: r, pipeline: p, registry: reg, source: src}
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type loadBody struct {
	SceneID     string `json:"sceneId"`
	DisplayName string `json:"displayName"`
	Custom      *struct {
		URL string `json:"url"`
	} `json:"custom"`
	Parts []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"parts"`
	Selection *selection.Loaded `json:"selection"`
}

func TestLoadSceneServesAssetsAndUnloads(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/viewer/scenes/42/load?target=both", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var got loadBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SceneID != "42" || got.DisplayName != "robot" {
		t.Fatalf("identity: got scene=%q name=%q", got.SceneID, got.DisplayName)
	}
	if len(got.Parts) != 2 || got.Parts[0].DisplayName != "Gear" || got.Parts[1].DisplayName != "받침대" {
		t.Fatalf("parts: got %+v", got.Parts)
	}
	if got.Parts[1].ID != "2" {
		t.Fatalf("part id: want=%q got=%q", "2", got.Parts[1].ID)
	}
	if got.Custom == nil || !strings.HasPrefix(got.Custom.URL, "/api/viewer/blobs/") {
		t.Fatalf("custom url: got %+v", got.Custom)
	}

	rec = env.do(http.MethodGet, "/api/viewer/assets/custom.gltf", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("asset: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != sceneasset.MIMEGLTFJSON {
		t.Fatalf("content type: want=%q got=%q", sceneasset.MIMEGLTFJSON, ct)
	}
	if rec.Body.String() != customGLTF {
		t.Fatalf("asset bytes mismatch")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache control: got %q", cc)
	}

	rec = env.do(http.MethodGet, "/api/viewer/resolve?uri=models/custom.bin", "")
	var resolved struct {
		Resolved string `json:"resolved"`
		Hit      bool   `json:"hit"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resolved)
	if !resolved.Hit || !strings.HasPrefix(resolved.Resolved, "/api/viewer/blobs/") {
		t.Fatalf("resolve by base name: got %+v", resolved)
	}

	blobPath := got.Custom.URL
	if rec := env.do(http.MethodDelete, "/api/viewer/active", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unload: want=%d got=%d", http.StatusNoContent, rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/viewer/active", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("active after unload: want=%d got=%d", http.StatusNotFound, rec.Code)
	}
	if rec := env.do(http.MethodGet, blobPath, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("revoked blob: want=%d got=%d", http.StatusNotFound, rec.Code)
	}
	if n := env.registry.Len(); n != 0 {
		t.Fatalf("registry after unload: want=0 got=%d", n)
	}
}

func TestLoadSceneMapsErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		target  string
		status  int
		relogin bool
		retry   bool
	}{
		{"expired", &sceneasset.Error{Kind: sceneasset.KindExpiredSession, Status: http.StatusUnauthorized}, "", http.StatusUnauthorized, true, false},
		{"upstream", &sceneasset.Error{Kind: sceneasset.KindUpstreamFailure, Status: http.StatusServiceUnavailable}, "", http.StatusBadGateway, false, true},
		{"bad target", nil, "front", http.StatusBadRequest, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.source.err = tc.err
			url := "/api/viewer/scenes/42/load"
			if tc.target != "" {
				url += "?target=" + tc.target
			}
			rec := env.do(http.MethodPost, url, "")
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d body=%s", tc.status, rec.Code, rec.Body.String())
			}
			var body struct {
				Error struct {
					Retryable bool `json:"retryable"`
					Relogin   bool `json:"relogin"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Relogin != tc.relogin || body.Error.Retryable != tc.retry {
				t.Fatalf("flags: want relogin=%v retry=%v got %+v", tc.relogin, tc.retry, body.Error)
			}
		})
	}
}

func TestLoadSceneMalformedArchiveKeepsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.source.data = buildZip(t, map[string]string{"custom.gltf": customGLTF})

	rec := env.do(http.MethodPost, "/api/viewer/scenes/42/load", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=%d got=%d", http.StatusUnprocessableEntity, rec.Code)
	}
	if env.pipeline.Current() != nil {
		t.Fatalf("nothing should be installed")
	}
	if n := env.registry.Len(); n != 0 {
		t.Fatalf("registry: want=0 got=%d", n)
	}
}

func TestSelectionRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodPut, "/api/viewer/scenes/42/selection", `{"partIds":["2"]}`, "X-Test-Viewer", "v1"); rec.Code != http.StatusConflict {
		t.Fatalf("save before load: want=%d got=%d", http.StatusConflict, rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/viewer/scenes/42/load", ""); rec.Code != http.StatusOK {
		t.Fatalf("load: got %d", rec.Code)
	}

	rec := env.do(http.MethodPut, "/api/viewer/scenes/42/selection", `{"partIds":["2","99","0"]}`, "X-Test-Viewer", "v1")
	if rec.Code != http.StatusOK {
		t.Fatalf("save: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/viewer/scenes/42/selection", "", "X-Test-Viewer", "v1")
	var got struct {
		Selection selection.Loaded `json:"selection"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(got.Selection.PartIDs, ",") != "0,2" || got.Selection.Stale {
		t.Fatalf("selection: got %+v", got.Selection)
	}

	rec = env.do(http.MethodGet, "/api/viewer/active", "", "X-Test-Viewer", "v1")
	var active loadBody
	_ = json.Unmarshal(rec.Body.Bytes(), &active)
	if active.Selection == nil || len(active.Selection.PartIDs) != 2 {
		t.Fatalf("active view selection: got %+v", active.Selection)
	}
}
