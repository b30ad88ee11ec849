package main

import (
	"database/sql"
	"net/http"
	"time"

	"marketplace-messaging/internal/httpapi"
	"marketplace-messaging/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, db *sql.DB, webhookSecret, verifyToken string, serviceAuth gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Provider subscription handshake (unsigned GET).
	r.GET("/callbacks", httpapi.VerifySubscription(verifyToken))

	// Provider callbacks, authenticated by webhook signature.
	callbacks := r.Group("/callbacks", httpapi.RequireWebhookSignature(webhookSecret))
	{
		callbacks.POST("/delivery-status", h.DeliveryStatusCallback)
		callbacks.POST("/inbound-message", h.InboundMessageCallback)
	}

	// Internal ops, service-token guarded. No end-user traffic here.
	internal := r.Group("/internal", serviceAuth)
	{
		internal.GET("/interactions/:id", h.GetInteraction)
		internal.GET("/reports/interactions", h.InteractionReport)
		internal.POST("/dispatch/run", h.RunDispatch)
		internal.POST("/intent/reload", h.ReloadIntentPacks)
	}
}
