package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	replayer OutboxReplayer
	logger   *zap.Logger
}

func NewAdminHandler(replayer OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replayer: replayer, logger: logger}
}

type replayRequest struct {
	EventID int64 `json:"eventId"`
}

// ReplayEvent republishes a single outbox event by id.
func (h *AdminHandler) ReplayEvent(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EventID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventId is required"})
		return
	}
	if err := h.replayer.ReplayEvent(c.Request.Context(), req.EventID); err != nil {
		respondError(c, h.logger, "ReplayEvent", err)
		return
	}
	h.logger.Info("ReplayEvent: success", zap.Int64("event_id", req.EventID))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "eventId": req.EventID})
}

// ReplayFailed republishes up to limit failed events (default 100).
func (h *AdminHandler) ReplayFailed(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	n, err := h.replayer.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "ReplayFailed", err)
		return
	}
	h.logger.Info("ReplayFailed: success", zap.Int("replayed", n))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "replayed": n})
}
