package http

import (
	"github.com/GriffinCanCode/proxyview/internal/render"
	"github.com/gin-gonic/gin"
)

// Register mounts the shell, document and control routes. apiMiddleware
// applies to /api only.
func (h *Handlers) Register(router gin.IRouter, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/", h.Shell)
	router.GET("/health", h.Health)
	router.GET(render.ViewPath+":id", h.View)

	api := router.Group("/api", apiMiddleware...)
	api.GET("/state", h.State)
	api.POST("/navigate", h.Navigate)
	api.POST("/back", h.Back)
	api.POST("/forward", h.Forward)
	api.POST("/reload", h.Reload)
	api.POST("/external", h.External)
	api.POST("/logs", h.StreamLogs)
}
