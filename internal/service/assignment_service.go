package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/model"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/mq"
	"vendordesk/pkg/trace"
)

type AssignmentService struct {
	sessions SessionStore
	vendors  VendorStore
	tx       TxRunner
	events   EventEnqueuer
	logger   *zap.Logger
}

func NewAssignmentService(sessions SessionStore, vendors VendorStore, tx TxRunner, events EventEnqueuer, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{
		sessions: sessions,
		vendors:  vendors,
		tx:       tx,
		events:   events,
		logger:   logger,
	}
}

// Assign hands sessionID to vendorID. Previous notify and reply timestamps are
// cleared, so the session reads ASSIGNED until the worker has notified the vendor.
func (s *AssignmentService) Assign(ctx context.Context, sessionID, vendorID int64) (*model.ShipmentSession, error) {
	log := logger.WithTrace(ctx, s.logger)

	vendor, err := s.vendors.GetByID(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.Active {
		log.Warn("Rejected assignment to inactive vendor",
			zap.Int64("session_id", sessionID),
			zap.Int64("vendor_id", vendorID),
		)
		return nil, ErrVendorInactive
	}
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.sessions.AssignVendorTx(ctx, tx, sessionID, vendorID); err != nil {
			return err
		}
		return s.events.Enqueue(ctx, tx, "shipment_session", sessionID, mq.RoutingKeyVendorAssigned, contractsmq.VendorAssignedPayload{
			SessionID:  sessionID,
			VendorID:   vendorID,
			AssignedAt: time.Now().UTC(),
			TraceID:    trace.FromContext(ctx),
		})
	})
	if err != nil {
		log.Error("Failed to assign vendor",
			zap.Int64("session_id", sessionID),
			zap.Int64("vendor_id", vendorID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("assign vendor: %w", err)
	}

	log.Info("Vendor assigned",
		zap.Int64("session_id", sessionID),
		zap.Int64("vendor_id", vendorID),
	)
	return s.sessions.GetByID(ctx, sessionID)
}
