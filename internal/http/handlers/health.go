package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

type HealthHandler struct {
	pipeline ScenePipeline
	registry *sceneasset.BlobRegistry
}

func NewHealthHandler(pipeline ScenePipeline, registry *sceneasset.BlobRegistry) *HealthHandler {
	return &HealthHandler{pipeline: pipeline, registry: registry}
}

// HealthCheck always answers 200; the body says which scene is active.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "ok", "activeScene": nil, "blobsHeld": 0}
	if h.pipeline != nil {
		if cur := h.pipeline.Current(); cur != nil {
			body["activeScene"] = cur.SceneID
		}
	}
	if h.registry != nil {
		body["blobsHeld"] = h.registry.Len()
	}
	c.JSON(http.StatusOK, body)
}
