package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"marketplace-messaging/internal/dispatch"
	"marketplace-messaging/internal/ingest"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
//
// The callback endpoints always answer 200 for unmatched/duplicate input:
// the provider retries on non-2xx and a retry cannot make those succeed.
type Handlers struct {
	Delivery   *ingest.DeliveryIngestor
	Replies    *ingest.ReplyPipeline
	Store      interaction.Store
	Worker     *dispatch.Worker
	Classifier *intent.Classifier
	Reports    *reporting.Service
	PackDir    string
}

// --- Provider callbacks ---

type deliveryStatusRequest struct {
	ExternalMessageID string `json:"externalMessageId"`
	RawStatus         string `json:"rawStatus"`
}

func (h Handlers) DeliveryStatusCallback(c *gin.Context) {
	var req deliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ExternalMessageID == "" || req.RawStatus == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "externalMessageId and rawStatus required"})
		return
	}

	if err := h.Delivery.Apply(c.Request.Context(), req.ExternalMessageID, req.RawStatus); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status ingestion failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

type inboundMessageRequest struct {
	FromContact       string `json:"fromContact"`
	MessageText       string `json:"messageText"`
	ExternalInboundID string `json:"externalInboundId"`
}

func (h Handlers) InboundMessageCallback(c *gin.Context) {
	var req inboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.FromContact == "" || req.ExternalInboundID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "fromContact and externalInboundId required"})
		return
	}

	if err := h.Replies.Handle(c.Request.Context(), req.FromContact, req.MessageText, req.ExternalInboundID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "inbound ingestion failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// --- Internal ops (service-token guarded) ---

func (h Handlers) GetInteraction(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}
	it, err := h.Store.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, interaction.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "interaction not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, it)
}

// RunDispatch triggers one dispatch cycle outside the schedule. Useful for
// ops after a provider outage.
func (h Handlers) RunDispatch(c *gin.Context) {
	n, err := h.Worker.RunOnce(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatch cycle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": n})
}

// InteractionReport aggregates messaging metrics for a created-at window
// given as RFC3339 `from`/`to` query params.
func (h Handlers) InteractionReport(c *gin.Context) {
	from, errF := time.Parse(time.RFC3339, c.Query("from"))
	to, errT := time.Parse(time.RFC3339, c.Query("to"))
	if errF != nil || errT != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC3339 timestamps"})
		return
	}

	sum, err := h.Reports.InteractionSummary(c.Request.Context(), reporting.InteractionSummaryRequest{
		Range: reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ReloadIntentPacks re-reads the keyword packs from disk and swaps them in.
func (h Handlers) ReloadIntentPacks(c *gin.Context) {
	if h.PackDir == "" {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no pack dir configured, built-in packs active"})
		return
	}
	packs, err := intent.LoadPacks(h.PackDir)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pack load failed: " + err.Error()})
		return
	}
	h.Classifier.Replace(packs)
	c.JSON(http.StatusOK, gin.H{"locales": h.Classifier.Locales()})
}
