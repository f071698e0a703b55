package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-viewer/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-viewer/internal/http/middleware"
	"github.com/yungbote/neurobridge-viewer/internal/observability"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Tracing        bool
	Metrics        *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware
	ViewerHandler  *httpH.ViewerHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api/viewer")
	api.Use(httpMW.LimitBody())
	// Every viewer route needs a verified identity.
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.AttachBearer(), cfg.AuthMiddleware.RequireViewer())
	}
	if cfg.ViewerHandler != nil {
		// Scenes
		api.POST("/scenes/:id/load", cfg.ViewerHandler.LoadScene)
		api.GET("/active", cfg.ViewerHandler.GetActive)
		api.DELETE("/active", cfg.ViewerHandler.UnloadActive)

		// Resolution and bytes
		api.GET("/resolve", cfg.ViewerHandler.Resolve)
		api.GET("/blobs/:handle", cfg.ViewerHandler.ServeBlob)
		api.GET("/assets/*path", cfg.ViewerHandler.ServeAsset)

		// Selection (per viewer)
		api.GET("/scenes/:id/selection", cfg.ViewerHandler.GetSelection)
		api.PUT("/scenes/:id/selection", cfg.ViewerHandler.PutSelection)
	}
	return r
}
