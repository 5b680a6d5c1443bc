package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
)

type EmailHandler struct {
	emails  EmailReader
	replies Replier
	logger  *zap.Logger
}

func NewEmailHandler(emails EmailReader, replies Replier, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{emails: emails, replies: replies, logger: logger}
}

func (h *EmailHandler) ListEmails(c *gin.Context) {
	filter, ok := parseEmailFilter(c)
	if !ok {
		return
	}

	emails, err := h.emails.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "ListEmails", err)
		return
	}
	h.logger.Debug("ListEmails: success", zap.Int("count", len(emails)))
	c.JSON(http.StatusOK, emails)
}

func parseEmailFilter(c *gin.Context) (repository.EmailFilter, bool) {
	var f repository.EmailFilter
	var err error

	f.Category = model.EmailCategory(c.Query("category"))
	if f.Category != "" && !f.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return f, false
	}
	if f.IsShippingRequest, err = queryBool(c, "is_shipping_request"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid is_shipping_request"})
		return f, false
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil || f.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return f, false
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil || f.Offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return f, false
	}
	return f, true
}

func (h *EmailHandler) GetEmail(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	email, err := h.emails.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "GetEmail", err)
		return
	}
	c.JSON(http.StatusOK, email)
}

type replyRequest struct {
	Content string `json:"content"`
}

// ReplyToEmail stores an operator reply and returns the email with it attached.
func (h *EmailHandler) ReplyToEmail(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id")
	if !ok {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("ReplyToEmail: invalid body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.logger.Info("ReplyToEmail request received",
		zap.Int64("email_id", id),
		zap.String("client_ip", c.ClientIP()),
	)
	email, err := h.replies.Reply(c.Request.Context(), id, req.Content)
	if err != nil {
		respondError(c, h.logger, "ReplyToEmail", err)
		return
	}
	c.JSON(http.StatusOK, email)
}
