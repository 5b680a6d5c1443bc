package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
	"vendordesk/internal/thread"
	"vendordesk/pkg/metrics"
)

type ThreadHandler struct {
	emails  EmailReader
	replies Replier
	logger  *zap.Logger
}

func NewThreadHandler(emails EmailReader, replies Replier, logger *zap.Logger) *ThreadHandler {
	return &ThreadHandler{emails: emails, replies: replies, logger: logger}
}

// ListThreads assembles threads from the filtered email page, most recent
// activity first. Every thread touched by the page is loaded in full.
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	filter, ok := parseEmailFilter(c)
	if !ok {
		return
	}
	page, err := h.emails.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "ListThreads", err)
		return
	}
	emails, err := h.completeThreads(c.Request.Context(), page)
	if err != nil {
		respondError(c, h.logger, "ListThreads", err)
		return
	}
	threads := thread.Assemble(emails)
	metrics.ObserveThreadsAssembled(len(threads))
	c.JSON(http.StatusOK, threads)
}

// completeThreads swaps the page's threaded emails for the full threads they
// belong to. Emails without a thread id are single-message threads already.
func (h *ThreadHandler) completeThreads(ctx context.Context, page []model.Email) ([]model.Email, error) {
	var ids []string
	seen := make(map[string]bool)
	out := make([]model.Email, 0, len(page))
	for _, e := range page {
		id := strings.TrimSpace(e.ThreadID)
		if id == "" {
			out = append(out, e)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}
	full, err := h.emails.ListByThreadIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return append(out, full...), nil
}

func (h *ThreadHandler) findThread(c *gin.Context) (thread.Thread, bool) {
	id := c.Param("threadId")
	emails, err := h.emails.ListByThread(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "GetThread", err)
		return thread.Thread{}, false
	}
	for _, t := range thread.Assemble(emails) {
		if t.ThreadID == id {
			return t, true
		}
	}
	respondError(c, h.logger, "GetThread", repository.ErrNotFound)
	return thread.Thread{}, false
}

func (h *ThreadHandler) GetThread(c *gin.Context) {
	t, ok := h.findThread(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t)
}

// ReplyToThread answers the thread's latest entry, or its parent when the
// latest entry is itself an operator reply.
func (h *ThreadHandler) ReplyToThread(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	t, ok := h.findThread(c)
	if !ok {
		return
	}
	target, err := thread.LatestReplyTarget(t)
	if err != nil {
		respondError(c, h.logger, "ReplyToThread", err)
		return
	}
	email, err := h.replies.Reply(c.Request.Context(), target, req.Content)
	if err != nil {
		respondError(c, h.logger, "ReplyToThread", err)
		return
	}
	c.JSON(http.StatusOK, email)
}
