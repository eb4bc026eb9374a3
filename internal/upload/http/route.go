package http

import "github.com/gin-gonic/gin"

func RegisterRoutes(g *gin.RouterGroup, h *Handler, operatorMiddleware gin.HandlerFunc) {
	g.POST("/uploads/:kind", h.Upload)

	admin := g.Group("/admin")
	admin.Use(operatorMiddleware)
	admin.GET("/uploads/*path", h.Serve)
}
