package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
	"vendordesk/internal/status"
)

// SessionView is a session as the dashboard shows it.
type SessionView struct {
	model.ShipmentSession
	DisplayStatus status.DisplayStatus `json:"displayStatus"`
	DisplayLabel  string               `json:"displayLabel"`
}

func newSessionView(s model.ShipmentSession) SessionView {
	d := status.Resolve(s)
	return SessionView{ShipmentSession: s, DisplayStatus: d, DisplayLabel: d.Label()}
}

type SessionHandler struct {
	sessions SessionStore
	assigner Assigner
	logger   *zap.Logger
}

func NewSessionHandler(sessions SessionStore, assigner Assigner, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, assigner: assigner, logger: logger}
}

func (h *SessionHandler) parseFilter(c *gin.Context) (repository.SessionFilter, status.Tab, bool) {
	var f repository.SessionFilter

	tab, err := status.ParseTab(c.Query("tab"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return f, "", false
	}
	f.Status = model.SessionStatus(c.Query("status"))
	if raw := c.Query("vendor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_id"})
			return f, "", false
		}
		f.VendorID = &id
	}
	if d, ok := tab.Display(); ok {
		f.Display = d
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil || f.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return f, "", false
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil || f.Offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return f, "", false
	}
	return f, tab, true
}

// ListSessions returns sessions with their display status, optionally narrowed to a tab.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	f, tab, ok := h.parseFilter(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, "ListSessions", err)
		return
	}

	filtered := status.Filter(sessions, tab)
	views := make([]SessionView, 0, len(filtered))
	for _, s := range filtered {
		views = append(views, newSessionView(s))
	}
	c.JSON(http.StatusOK, views)
}

// listByCompletion serves the fixed complete/incomplete shipment lists. Both
// stored labels complete and completed count as complete.
func (h *SessionHandler) listByCompletion(complete bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if limit == 0 {
			limit = 100
		}
		sessions, err := h.sessions.List(c.Request.Context(), repository.SessionFilter{Complete: &complete, Limit: limit})
		if err != nil {
			respondError(c, h.logger, "ListShipments", err)
			return
		}
		views := make([]SessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, newSessionView(s))
		}
		c.JSON(http.StatusOK, views)
	}
}

func (h *SessionHandler) CompleteShipments() gin.HandlerFunc {
	return h.listByCompletion(true)
}

func (h *SessionHandler) IncompleteShipments() gin.HandlerFunc {
	return h.listByCompletion(false)
}

// Counts returns the tab counters over all sessions matching status/vendor_id.
func (h *SessionHandler) Counts(c *gin.Context) {
	f, _, ok := h.parseFilter(c)
	if !ok {
		return
	}
	f.Limit, f.Offset, f.Display = 0, 0, ""
	sessions, err := h.sessions.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, "SessionCounts", err)
		return
	}
	c.JSON(http.StatusOK, status.Counts(sessions))
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	s, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "GetSession", err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(*s))
}

type assignRequest struct {
	VendorID      *int64 `json:"vendorId"`
	VendorIDSnake *int64 `json:"vendor_id"`
}

func (r assignRequest) vendorID() (int64, bool) {
	switch {
	case r.VendorID != nil:
		return *r.VendorID, *r.VendorID > 0
	case r.VendorIDSnake != nil:
		return *r.VendorIDSnake, *r.VendorIDSnake > 0
	}
	return 0, false
}

func (h *SessionHandler) AssignVendor(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	vendorID, ok := req.vendorID()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vendorId is required"})
		return
	}

	h.logger.Info("AssignVendor request received",
		zap.Int64("session_id", id),
		zap.Int64("vendor_id", vendorID),
	)
	s, err := h.assigner.Assign(c.Request.Context(), id, vendorID)
	if err != nil {
		respondError(c, h.logger, "AssignVendor", err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(*s))
}

type statusRequest struct {
	Status model.SessionStatus `json:"status"`
}

func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	s, err := h.sessions.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, "UpdateSessionStatus", err)
		return
	}
	h.logger.Info("UpdateSessionStatus: success",
		zap.Int64("session_id", id),
		zap.String("status", string(req.Status)),
	)
	c.JSON(http.StatusOK, newSessionView(*s))
}
