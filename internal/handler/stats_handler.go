package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatsHandler struct {
	stats  StatsProvider
	logger *zap.Logger
}

func NewStatsHandler(stats StatsProvider, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

func (h *StatsHandler) Summary(c *gin.Context) {
	s, err := h.stats.Summary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Stats", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *StatsHandler) Dashboard(c *gin.Context) {
	d, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "DashboardStats", err)
		return
	}
	c.JSON(http.StatusOK, d)
}
