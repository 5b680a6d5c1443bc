package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/model"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/mq"
	"vendordesk/pkg/trace"
)

type ReplyService struct {
	emails EmailStore
	tx     TxRunner
	events EventEnqueuer
	domain string
	logger *zap.Logger
}

func NewReplyService(emails EmailStore, tx TxRunner, events EventEnqueuer, domain string, logger *zap.Logger) *ReplyService {
	if domain == "" {
		domain = "vendordesk.local"
	}
	return &ReplyService{
		emails: emails,
		tx:     tx,
		events: events,
		domain: domain,
		logger: logger,
	}
}

// Reply stores an operator reply against emailID and queues its delivery.
// The returned email includes the new reply.
func (s *ReplyService) Reply(ctx context.Context, emailID int64, content string) (*model.Email, error) {
	log := logger.WithTrace(ctx, s.logger)

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyReply
	}

	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}

	reply := &model.EmailReply{
		MessageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain),
		Subject:   email.Subject,
		Body:      content,
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.emails.InsertReplyTx(ctx, tx, email.ID, reply); err != nil {
			return err
		}
		return s.events.Enqueue(ctx, tx, "email", email.ID, mq.RoutingKeyReplyRequested, contractsmq.ReplyRequestedPayload{
			ReplyID:   reply.ID,
			EmailID:   email.ID,
			To:        email.SenderEmail,
			Subject:   email.Subject,
			Body:      content,
			MessageID: reply.MessageID,
			InReplyTo: email.MessageID,
			TraceID:   trace.FromContext(ctx),
		})
	})
	if err != nil {
		log.Error("Failed to store reply", zap.Int64("email_id", emailID), zap.Error(err))
		return nil, fmt.Errorf("store reply: %w", err)
	}

	log.Info("Reply queued",
		zap.Int64("email_id", email.ID),
		zap.Int64("reply_id", reply.ID),
		zap.String("message_id", reply.MessageID),
	)
	return s.emails.GetByID(ctx, emailID)
}
