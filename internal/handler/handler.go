package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
	"vendordesk/internal/service"
	"vendordesk/internal/stats"
	"vendordesk/internal/thread"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/outbox"
)

type EmailReader interface {
	List(ctx context.Context, f repository.EmailFilter) ([]model.Email, error)
	GetByID(ctx context.Context, id int64) (*model.Email, error)
	ListByThread(ctx context.Context, threadID string) ([]model.Email, error)
	ListByThreadIDs(ctx context.Context, threadIDs []string) ([]model.Email, error)
}

type Replier interface {
	Reply(ctx context.Context, emailID int64, content string) (*model.Email, error)
}

type SessionStore interface {
	List(ctx context.Context, f repository.SessionFilter) ([]model.ShipmentSession, error)
	GetByID(ctx context.Context, id int64) (*model.ShipmentSession, error)
	UpdateStatus(ctx context.Context, id int64, status model.SessionStatus) (*model.ShipmentSession, error)
}

type Assigner interface {
	Assign(ctx context.Context, sessionID, vendorID int64) (*model.ShipmentSession, error)
}

type VendorStore interface {
	List(ctx context.Context, f repository.VendorFilter) ([]model.Vendor, error)
	Search(ctx context.Context, q string, vendorType model.VendorType) ([]model.Vendor, error)
	GetByID(ctx context.Context, id int64) (*model.Vendor, error)
	Create(ctx context.Context, v *model.Vendor) error
	Update(ctx context.Context, id int64, patch model.VendorPatch) (*model.Vendor, error)
	Delete(ctx context.Context, id int64) error
}

type StatsProvider interface {
	Summary(ctx context.Context) (stats.Summary, error)
	Dashboard(ctx context.Context) (stats.Dashboard, error)
	VendorStats(ctx context.Context) ([]stats.VendorStats, error)
}

type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

// parseID reads a positive int64 path parameter, writing a 400 on failure.
func parseID(c *gin.Context, log *zap.Logger, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		log.Warn("Invalid path id", zap.String("param", name), zap.String("value", raw))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryBool(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// respondError maps domain errors to status codes. 5xx responses never echo the cause.
func respondError(c *gin.Context, log *zap.Logger, op string, err error) {
	log = logger.WithTrace(c.Request.Context(), log)
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, outbox.ErrEventNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, repository.ErrConflict):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, service.ErrVendorInactive):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrEmptyReply):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, thread.ErrNoReplyTarget):
		status, msg = http.StatusUnprocessableEntity, "thread has no reply target"
	}

	if status >= http.StatusInternalServerError {
		log.Error(op+": failed", zap.Error(err))
	} else {
		log.Warn(op+": rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}
