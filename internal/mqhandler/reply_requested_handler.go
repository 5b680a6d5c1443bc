package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	contractsmq "vendordesk/contracts/mq"
	"vendordesk/internal/notifier"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/util"
)

const replyHandlerName = "email.reply_requested"

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

type ReplyRequestedHandler struct {
	sender  notifier.Sender
	deduper Deduper
	logger  *zap.Logger
}

func NewReplyRequestedHandler(sender notifier.Sender, deduper Deduper, logger *zap.Logger) *ReplyRequestedHandler {
	return &ReplyRequestedHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

// HandleReplyRequested delivers an operator reply to the original sender.
func (h *ReplyRequestedHandler) HandleReplyRequested(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p contractsmq.ReplyRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal reply requested payload", zap.Error(err))
		return util.Permanent(fmt.Errorf("decode email.reply_requested: %w", err), "json_decode_error")
	}
	if p.To == "" {
		return util.Permanent(errors.New("reply has no recipient"), "invalid_payload")
	}
	log = log.With(zap.Int64("email_id", p.EmailID), zap.Int64("reply_id", p.ReplyID))

	key := p.MessageID
	if key == "" {
		key = fmt.Sprintf("reply-%d", p.ReplyID)
	}
	if !h.deduper.AcquireOnce(ctx, replyHandlerName, key) {
		return nil
	}

	providerID, err := h.sender.Send(ctx, notifier.ComposeReply(p))
	if err != nil {
		h.deduper.Release(ctx, replyHandlerName, key)
		return err
	}
	log.Info("Reply delivered", zap.String("provider_id", providerID))
	return nil
}
