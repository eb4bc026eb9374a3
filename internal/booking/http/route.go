package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, operatorMiddleware gin.HandlerFunc) {
	group := g.Group("/bookings")
	{
		group.POST("", h.Submit)
		group.GET("/resolve", h.Resolve)
		group.GET("/cancel", h.Cancel)
	}

	// === Operator Routes ===
	admin := g.Group("/admin")
	admin.Use(operatorMiddleware)
	{
		admin.GET("/bookings", h.List)
		admin.GET("/bookings/:id", h.Get)
		admin.POST("/reconcile", h.Reconcile)
	}
}
