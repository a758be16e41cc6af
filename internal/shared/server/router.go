package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobtailor/internal/shared/config"
	"jobtailor/internal/shared/metrics"
	"jobtailor/internal/shared/server/middleware"
	"jobtailor/internal/shared/server/respond"
)

// RouteRegistrar attaches a feature's routes to the api group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// NewRouter constructs the gin engine with middleware, health, metrics and the given feature routes.
func NewRouter(cfg config.Config, registrars ...RouteRegistrar) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true, "env": cfg.Env})
	})
	for _, reg := range registrars {
		if reg != nil {
			reg.RegisterRoutes(api)
		}
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
