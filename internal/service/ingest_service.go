package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/extract"
	"vendordesk/internal/model"
	"vendordesk/internal/repository"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/metrics"
	"vendordesk/pkg/util"
)

const ingestHandlerName = "email.received"

// IngestService stores classified inbound email. In the same transaction it
// records vendor replies, fills in incomplete sessions from customer replies
// and opens sessions for new shipping requests.
type IngestService struct {
	emails   EmailStore
	sessions SessionStore
	vendors  VendorStore
	tx       TxRunner
	deduper  Deduper
	logger   *zap.Logger
}

func NewIngestService(emails EmailStore, sessions SessionStore, vendors VendorStore, tx TxRunner, deduper Deduper, logger *zap.Logger) *IngestService {
	return &IngestService{
		emails:   emails,
		sessions: sessions,
		vendors:  vendors,
		tx:       tx,
		deduper:  deduper,
		logger:   logger,
	}
}

// HandleEmailReceived consumes an email.received payload. Redeliveries of an
// already stored message id are acknowledged without side effects.
func (s *IngestService) HandleEmailReceived(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, s.logger)

	var p contractsmq.EmailReceivedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal email received payload", zap.Error(err))
		metrics.IncrementEmailIngested("invalid")
		return util.Permanent(fmt.Errorf("decode email.received: %w", err), "json_decode_error")
	}
	p.MessageID = strings.TrimSpace(p.MessageID)
	if p.MessageID == "" {
		metrics.IncrementEmailIngested("invalid")
		return util.Permanent(errors.New("email.received without message id"), "invalid_payload")
	}

	log = log.With(zap.String("message_id", p.MessageID))

	if !s.deduper.AcquireOnce(ctx, ingestHandlerName, p.MessageID) {
		metrics.IncrementEmailIngested("duplicate")
		return nil
	}

	err := s.ingest(ctx, log, p)
	if err != nil {
		// let a redelivery try again
		s.deduper.Release(ctx, ingestHandlerName, p.MessageID)
	}
	return err
}

func (s *IngestService) ingest(ctx context.Context, log *zap.Logger, p contractsmq.EmailReceivedPayload) error {
	if _, err := s.emails.GetByMessageID(ctx, p.MessageID); err == nil {
		log.Info("Email already stored, skipping")
		metrics.IncrementEmailIngested("duplicate")
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup email: %w", err)
	}

	email := emailFromPayload(p)

	vendorSession, err := s.awaitingSessionFor(ctx, p.SenderEmail)
	if err != nil {
		return err
	}
	var infoSession *model.ShipmentSession
	if vendorSession == nil {
		if infoSession, err = s.incompleteSessionFor(ctx, email); err != nil {
			return err
		}
	}

	result := "stored"
	switch {
	case vendorSession != nil:
		email.Category = model.CategoryOther
		email.IsShippingRequest = false
		email.Status = model.EmailCompleted
		result = "vendor_reply"
	case infoSession != nil:
		email.Category = model.CategoryShippingRequest
		email.IsShippingRequest = true
		email.Status = model.EmailCompleted
		result = "missing_info"
	case email.Category == model.CategoryShippingRequest || email.IsShippingRequest:
		result = "session_created"
	}

	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		inserted, err := s.emails.InsertTx(ctx, tx, email)
		if err != nil {
			return fmt.Errorf("insert email: %w", err)
		}
		if !inserted {
			result = "duplicate"
			return nil
		}
		switch result {
		case "vendor_reply":
			return s.recordVendorReply(ctx, tx, log, vendorSession, email)
		case "missing_info":
			return s.applyMissingInfo(ctx, tx, log, infoSession, email)
		case "session_created":
			return s.openSession(ctx, tx, log, email)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncrementEmailIngested(result)
	log.Info("Email ingested", zap.String("result", result), zap.Int64("email_id", email.ID))
	return nil
}

func (s *IngestService) recordVendorReply(ctx context.Context, tx pgx.Tx, log *zap.Logger, session *model.ShipmentSession, email *model.Email) error {
	if err := s.sessions.MarkVendorRepliedTx(ctx, tx, session.ID, email.ReceivedAt.Time, email.MessageID, email.Body); err != nil {
		log.Error("Failed to record vendor reply", zap.Int64("session_id", session.ID), zap.Error(err))
		return fmt.Errorf("mark vendor replied: %w", err)
	}
	log.Info("Vendor reply recorded",
		zap.Int64("session_id", session.ID),
		zap.Int64p("vendor_id", session.VendorID),
	)
	return nil
}

// applyMissingInfo merges the fields a customer supplied into session. Values
// already on the session win over the reply.
func (s *IngestService) applyMissingInfo(ctx context.Context, tx pgx.Tx, log *zap.Logger, session *model.ShipmentSession, email *model.Email) error {
	now := time.Now().UTC()
	extract.Merge(session, extract.Fields(email.Body))
	extract.Refresh(session, now)
	session.MissingInfoUpdatedAt = &now

	if err := s.sessions.UpdateFieldsTx(ctx, tx, session); err != nil {
		log.Error("Failed to apply missing info", zap.Int64("session_id", session.ID), zap.Error(err))
		return fmt.Errorf("update session fields: %w", err)
	}
	log.Info("Missing info applied",
		zap.Int64("session_id", session.ID),
		zap.String("status", string(session.Status)),
		zap.Strings("still_missing", session.MissingFields),
	)
	return nil
}

func (s *IngestService) openSession(ctx context.Context, tx pgx.Tx, log *zap.Logger, email *model.Email) error {
	values := extract.Fields(email.Body)
	session := &model.ShipmentSession{
		EmailID:  email.ID,
		ThreadID: email.ThreadID,
		Subject:  email.Subject,
	}
	extract.Merge(session, values)
	if session.SenderName == "" {
		session.SenderName = strings.TrimSpace(email.SenderName)
	}
	extract.Refresh(session, time.Now().UTC())

	created, err := s.sessions.InsertTx(ctx, tx, session, values)
	if err != nil {
		log.Error("Failed to open session", zap.Int64("email_id", email.ID), zap.Error(err))
		return fmt.Errorf("insert session: %w", err)
	}
	if created {
		log.Info("Session opened",
			zap.Int64("session_id", session.ID),
			zap.String("status", string(session.Status)),
			zap.Strings("missing_fields", session.MissingFields),
		)
	}
	return nil
}

// incompleteSessionFor finds the incomplete session a customer email answers:
// same thread first, then a "Re:" subject naming the session's subject.
func (s *IngestService) incompleteSessionFor(ctx context.Context, email *model.Email) (*model.ShipmentSession, error) {
	if email.ThreadID != "" {
		session, err := s.sessions.LatestIncompleteByThread(ctx, email.ThreadID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup session by thread: %w", err)
		}
	}
	subject, ok := replySubject(email.Subject)
	if !ok {
		return nil, nil
	}
	session, err := s.sessions.LatestIncompleteBySubject(ctx, subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session by subject: %w", err)
	}
	return session, nil
}

// replySubject strips leading "Re:" markers. ok is false when subject has none
// or nothing is left.
func replySubject(subject string) (string, bool) {
	rest := strings.TrimSpace(subject)
	stripped := false
	for len(rest) >= 3 && strings.EqualFold(rest[:3], "re:") {
		rest = strings.TrimSpace(rest[3:])
		stripped = true
	}
	return rest, stripped && rest != ""
}

// awaitingSessionFor returns the session a registered vendor is most likely
// replying to, or nil when the sender is not a vendor or nothing awaits a reply.
func (s *IngestService) awaitingSessionFor(ctx context.Context, sender string) (*model.ShipmentSession, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return nil, nil
	}
	vendor, err := s.vendors.GetByEmail(ctx, sender)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup vendor: %w", err)
	}
	session, err := s.sessions.LatestAwaitingReply(ctx, vendor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup awaiting session: %w", err)
	}
	return session, nil
}

func emailFromPayload(p contractsmq.EmailReceivedPayload) *model.Email {
	category := model.EmailCategory(p.Category)
	if !category.Valid() {
		category = model.CategoryOther
	}
	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return &model.Email{
		MessageID:         p.MessageID,
		ThreadID:          strings.TrimSpace(p.ThreadID),
		SenderEmail:       p.SenderEmail,
		SenderName:        p.SenderName,
		Subject:           p.Subject,
		Body:              p.Body,
		Category:          category,
		IsShippingRequest: p.IsShippingRequest,
		Status:            model.EmailUnprocessed,
		IsReply:           p.IsReply,
		IsForwarded:       p.IsForwarded,
		ReceivedAt:        model.NewTimestamp(receivedAt.UTC()),
	}
}
