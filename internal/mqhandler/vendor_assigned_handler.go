package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/model"
	"vendordesk/internal/notifier"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/util"
)

const vendorAssignedHandlerName = "session.vendor_assigned"

type SessionStore interface {
	GetByID(ctx context.Context, id int64) (*model.ShipmentSession, error)
	MarkNotified(ctx context.Context, sessionID, vendorID int64, at time.Time) (bool, error)
}

type VendorStore interface {
	GetByID(ctx context.Context, id int64) (*model.Vendor, error)
}

type VendorAssignedHandler struct {
	sessions SessionStore
	vendors  VendorStore
	sender   notifier.Sender
	deduper  Deduper
	logger   *zap.Logger
}

func NewVendorAssignedHandler(sessions SessionStore, vendors VendorStore, sender notifier.Sender, deduper Deduper, logger *zap.Logger) *VendorAssignedHandler {
	return &VendorAssignedHandler{
		sessions: sessions,
		vendors:  vendors,
		sender:   sender,
		deduper:  deduper,
		logger:   logger,
	}
}

// HandleVendorAssigned emails the vendor about a new session and marks the
// session notified, which moves it to PENDING_REPLY. The email goes out at
// most once per assignment; a redelivery after a failed mark only records it.
func (h *VendorAssignedHandler) HandleVendorAssigned(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p contractsmq.VendorAssignedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal vendor assigned payload", zap.Error(err))
		return util.Permanent(fmt.Errorf("decode session.vendor_assigned: %w", err), "json_decode_error")
	}
	log = log.With(zap.Int64("session_id", p.SessionID), zap.Int64("vendor_id", p.VendorID))

	session, err := h.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !session.AssignedTo(p.VendorID) {
		log.Info("Session reassigned since event was queued, skipping")
		return nil
	}
	if session.VendorNotifiedAt != nil {
		log.Debug("Vendor already notified, skipping")
		return nil
	}

	key := fmt.Sprintf("%d:%d:%d", p.SessionID, p.VendorID, p.AssignedAt.UnixNano())
	if h.deduper.AcquireOnce(ctx, vendorAssignedHandlerName, key) {
		if err := h.notify(ctx, log, *session, p.VendorID); err != nil {
			h.deduper.Release(ctx, vendorAssignedHandlerName, key)
			return err
		}
	} else {
		log.Info("Vendor notification already sent, recording it")
	}

	updated, err := h.sessions.MarkNotified(ctx, p.SessionID, p.VendorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	log.Info("Vendor notified", zap.Bool("session_updated", updated))
	return nil
}

func (h *VendorAssignedHandler) notify(ctx context.Context, log *zap.Logger, session model.ShipmentSession, vendorID int64) error {
	vendor, err := h.vendors.GetByID(ctx, vendorID)
	if err != nil {
		return fmt.Errorf("load vendor: %w", err)
	}
	providerID, err := h.sender.Send(ctx, notifier.ComposeVendorNotification(session, *vendor))
	if err != nil {
		return err
	}
	log.Info("Vendor notification sent", zap.String("provider_id", providerID))
	return nil
}
