package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"vendordesk/pkg/logger"
	"vendordesk/pkg/mq"
	"vendordesk/pkg/util"
)

const defaultMaxRetries = 5

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError, failedAt string) error
}

// Guard bounds redelivery of failing messages. Retryable failures are nacked
// until the per-message counter passes maxRetries; everything else is moved to
// the dead letter exchange and acknowledged.
type Guard struct {
	retries    RetryCounter
	dlq        DeadLetterPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewGuard(retries RetryCounter, dlq DeadLetterPublisher, maxRetries int, logger *zap.Logger) *Guard {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Guard{
		retries:    retries,
		dlq:        dlq,
		maxRetries: int64(maxRetries),
		logger:     logger,
	}
}

func (g *Guard) Wrap(routingKey string, h mq.MessageHandler) mq.MessageHandler {
	return func(ctx context.Context, raw json.RawMessage) error {
		key := util.FormatRetryKey(routingKey, digest(raw))

		err := h(ctx, raw)
		if err == nil {
			if rerr := g.retries.Reset(ctx, key); rerr != nil {
				g.logger.Debug("Failed to reset retry counter", zap.String("key", key), zap.Error(rerr))
			}
			return nil
		}

		log := logger.WithTrace(ctx, g.logger).With(zap.String("routing_key", routingKey))
		retryable, errType := util.IsRetryableError(err)

		count, cerr := g.retries.IncrementAndGet(ctx, key)
		if cerr != nil {
			// Redis 不可用时按第一次处理
			log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
			count = 1
		}

		if util.ShouldRetry(count, g.maxRetries, retryable) {
			log.Warn("Handler failed, message will be redelivered",
				zap.String("error_type", errType),
				zap.Int64("retry_count", count),
				zap.Int64("max_retries", g.maxRetries),
				zap.Error(err),
			)
			return err
		}

		log.Error("Handler failed permanently, sending to DLQ",
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Int64("retry_count", count),
			zap.Error(err),
		)
		if derr := g.dlq.PublishToDLQ(ctx, routingKey, raw, err.Error(), time.Now().UTC().Format(time.RFC3339)); derr != nil {
			log.Error("Failed to publish to DLQ", zap.Error(derr))
			return derr
		}
		if rerr := g.retries.Reset(ctx, key); rerr != nil {
			log.Debug("Failed to reset retry counter", zap.Error(rerr))
		}
		return nil
	}
}

func digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
