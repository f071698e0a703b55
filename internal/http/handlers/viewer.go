package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-viewer/internal/http/response"
	"github.com/yungbote/neurobridge-viewer/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
	"github.com/yungbote/neurobridge-viewer/internal/selection"
)

// statusClientClosedRequest is written when the caller went away mid-load.
const statusClientClosedRequest = 499

type ScenePipeline interface {
	Load(ctx context.Context, sceneID string, target sceneasset.Target) (*sceneasset.Result, error)
	Current() *sceneasset.Result
	Unload() bool
}

type ViewerHandler struct {
	log        *logger.Logger
	pipeline   ScenePipeline
	registry   *sceneasset.BlobRegistry
	resolution *sceneasset.ResolutionContext
	selections *selection.Service
}

func NewViewerHandler(log *logger.Logger, pipeline ScenePipeline, registry *sceneasset.BlobRegistry, resolution *sceneasset.ResolutionContext, selections *selection.Service) *ViewerHandler {
	return &ViewerHandler{
		log:        log.With("handler", "ViewerHandler"),
		pipeline:   pipeline,
		registry:   registry,
		resolution: resolution,
		selections: selections,
	}
}

type sceneView struct {
	*sceneasset.Result
	Selection *selection.Loaded `json:"selection,omitempty"`
}

// POST /api/viewer/scenes/:id/load?target=default|custom|both
func (h *ViewerHandler) LoadScene(c *gin.Context) {
	sceneID := strings.TrimSpace(c.Param("id"))
	target, err := sceneasset.ParseTarget(c.Query("target"))
	if err != nil {
		response.RespondSceneError(c, err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.pipeline.Load(ctx, sceneID, target)
	if err != nil {
		if ctx.Err() != nil || sceneasset.IsCancelled(err) {
			c.Status(statusClientClosedRequest)
			return
		}
		response.RespondSceneError(c, err)
		return
	}
	response.RespondOK(c, h.view(ctx, res))
}

// GET /api/viewer/active
func (h *ViewerHandler) GetActive(c *gin.Context) {
	res := h.pipeline.Current()
	if res == nil {
		response.RespondError(c, http.StatusNotFound, "no_active_scene", nil)
		return
	}
	response.RespondOK(c, h.view(c.Request.Context(), res))
}

// DELETE /api/viewer/active
func (h *ViewerHandler) UnloadActive(c *gin.Context) {
	h.pipeline.Unload()
	c.Status(http.StatusNoContent)
}

// GET /api/viewer/resolve?uri=
func (h *ViewerHandler) Resolve(c *gin.Context) {
	uri := c.Query("uri")
	if strings.TrimSpace(uri) == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_uri", nil)
		return
	}
	resolved, ok := h.resolution.Lookup(uri)
	if !ok {
		resolved = uri
	}
	response.RespondOK(c, gin.H{"uri": uri, "resolved": resolved, "hit": ok})
}

// GET /api/viewer/assets/*path
//
// Model documents fetched from here resolve their relative companion URIs
// back into this route, so a stock loader needs no URL hook.
func (h *ViewerHandler) ServeAsset(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("path"), "/")
	target, ok := h.resolution.Lookup(ref)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "asset_not_found", nil)
		return
	}
	handle, ok := h.registry.HandleFromURL(target)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "asset_not_found", nil)
		return
	}
	h.serveHandle(c, handle)
}

// GET /api/viewer/blobs/:handle
func (h *ViewerHandler) ServeBlob(c *gin.Context) {
	h.serveHandle(c, sceneasset.Handle(c.Param("handle")))
}

func (h *ViewerHandler) serveHandle(c *gin.Context, handle sceneasset.Handle) {
	blob, ok := h.registry.Open(handle)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "blob_revoked", nil)
		return
	}
	defer blob.Close()
	c.Header("Content-Type", blob.MIMEType)
	c.Header("Cache-Control", "no-store")
	http.ServeContent(c.Writer, c.Request, "", time.Time{}, blob)
}

type selectionRequest struct {
	PartIDs []string `json:"partIds"`
}

// GET /api/viewer/scenes/:id/selection
func (h *ViewerHandler) GetSelection(c *gin.Context) {
	ctx := c.Request.Context()
	sceneID := strings.TrimSpace(c.Param("id"))
	fingerprint := ""
	if res := h.pipeline.Current(); res != nil && res.SceneID == sceneID {
		fingerprint = res.Fingerprint
	}
	loaded, err := h.selections.Load(ctx, ctxutil.GetViewerKey(ctx), sceneID, fingerprint)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "selection_load_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"selection": loaded})
}

// PUT /api/viewer/scenes/:id/selection
func (h *ViewerHandler) PutSelection(c *gin.Context) {
	ctx := c.Request.Context()
	sceneID := strings.TrimSpace(c.Param("id"))
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_selection", err)
		return
	}
	res := h.pipeline.Current()
	if res == nil || res.SceneID != sceneID {
		response.RespondError(c, http.StatusConflict, "scene_not_loaded", nil)
		return
	}
	kept, err := h.selections.Save(ctx, ctxutil.GetViewerKey(ctx), sceneID, req.PartIDs, res.Parts, res.Fingerprint)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "selection_save_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"selection": selection.Loaded{PartIDs: kept}})
}

func (h *ViewerHandler) view(ctx context.Context, res *sceneasset.Result) sceneView {
	out := sceneView{Result: res}
	viewer := ctxutil.GetViewerKey(ctx)
	if viewer == "" || h.selections == nil {
		return out
	}
	loaded, err := h.selections.Load(ctx, viewer, res.SceneID, res.Fingerprint)
	if err != nil {
		h.log.Warn("Saved selection unavailable", "scene_id", res.SceneID, "error", err)
		return out
	}
	out.Selection = &loaded
	return out
}
