package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	mailgun "gopkg.in/mailgun/mailgun-go.v1"

	"vendordesk/pkg/circuitbreaker"
	"vendordesk/pkg/config"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/metrics"
)

// Sender delivers a message and returns the provider's id for it.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

var ErrNoRecipient = errors.New("notifier: message has no recipient")

// NewSender returns a Mailgun sender when a domain is configured and a LogSender otherwise.
func NewSender(cfg config.MailgunConfig, log *zap.Logger) Sender {
	if cfg.Domain == "" || cfg.APIKey == "" {
		log.Warn("Mailgun not configured, outbound email will only be logged")
		return NewLogSender(log)
	}
	return NewMailgunSender(cfg, log)
}

// MailgunSender sends through the Mailgun API behind a circuit breaker.
type MailgunSender struct {
	mg     mailgun.Mailgun
	from   string
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

func NewMailgunSender(cfg config.MailgunConfig, log *zap.Logger) *MailgunSender {
	from := cfg.From
	if from == "" {
		from = "Vendor Desk <desk@" + cfg.Domain + ">"
	}
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.OnStateChange = func(_, to circuitbreaker.State) {
		metrics.IncrementCircuitBreakerTransition("mailgun", to.String())
		log.Warn("Mailgun circuit breaker state changed", zap.String("state", to.String()))
	}
	return &MailgunSender{
		mg:     mailgun.NewMailgun(cfg.Domain, cfg.APIKey, cfg.PublicAPIKey),
		from:   from,
		cb:     circuitbreaker.NewCircuitBreaker(cbCfg),
		logger: log,
	}
}

func (s *MailgunSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	log := logger.WithTrace(ctx, s.logger)

	var providerID string
	start := time.Now()
	err := s.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		m := s.mg.NewMessage(s.from, msg.Subject, msg.Text, msg.To)
		if msg.MessageID != "" {
			m.AddHeader("Message-Id", msg.MessageID)
		}
		if msg.InReplyTo != "" {
			m.AddHeader("In-Reply-To", msg.InReplyTo)
			m.AddHeader("References", msg.InReplyTo)
		}
		_, id, err := s.mg.Send(m)
		if err != nil {
			return fmt.Errorf("mail provider rejected message: %w", err)
		}
		providerID = id
		return nil
	})

	statusLabel := "success"
	if err != nil {
		statusLabel = "error"
	}
	metrics.RecordUpstreamCallLatency("mailgun.send", statusLabel, time.Since(start))
	metrics.IncrementNotificationSent(string(msg.Kind), statusLabel)

	if err != nil {
		log.Error("Mailgun send failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return "", err
	}
	log.Info("Mailgun message queued",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("provider_id", providerID),
	)
	return providerID, nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	id := msg.MessageID
	if id == "" {
		id = fmt.Sprintf("log-%d", time.Now().UnixNano())
	}
	logger.WithTrace(ctx, s.logger).Info("Outbound email (not sent)",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("in_reply_to", msg.InReplyTo),
		zap.Int("body_bytes", len(msg.Text)),
	)
	metrics.IncrementNotificationSent(string(msg.Kind), "logged")
	return id, nil
}
