package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"vendordesk/internal/model"
	"vendordesk/internal/repository"
)

var (
	ErrEmptyReply     = errors.New("reply content is empty")
	ErrVendorInactive = errors.New("vendor is inactive")
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// EventEnqueuer writes an outbox event in the caller's transaction.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, routingKey string, payload any) error
}

type EmailStore interface {
	List(ctx context.Context, f repository.EmailFilter) ([]model.Email, error)
	GetByID(ctx context.Context, id int64) (*model.Email, error)
	GetByMessageID(ctx context.Context, messageID string) (*model.Email, error)
	InsertTx(ctx context.Context, tx pgx.Tx, e *model.Email) (bool, error)
	Totals(ctx context.Context) (model.EmailTotals, error)
	InsertReplyTx(ctx context.Context, tx pgx.Tx, emailID int64, reply *model.EmailReply) error
}

type SessionStore interface {
	List(ctx context.Context, f repository.SessionFilter) ([]model.ShipmentSession, error)
	GetByID(ctx context.Context, id int64) (*model.ShipmentSession, error)
	AssignVendorTx(ctx context.Context, tx pgx.Tx, sessionID, vendorID int64) error
	LatestAwaitingReply(ctx context.Context, vendorID int64) (*model.ShipmentSession, error)
	MarkVendorRepliedTx(ctx context.Context, tx pgx.Tx, sessionID int64, at time.Time, messageID, content string) error
	InsertTx(ctx context.Context, tx pgx.Tx, s *model.ShipmentSession, extracted map[string]string) (bool, error)
	UpdateFieldsTx(ctx context.Context, tx pgx.Tx, s *model.ShipmentSession) error
	LatestIncompleteByThread(ctx context.Context, threadID string) (*model.ShipmentSession, error)
	LatestIncompleteBySubject(ctx context.Context, subject string) (*model.ShipmentSession, error)
}

type VendorStore interface {
	List(ctx context.Context, f repository.VendorFilter) ([]model.Vendor, error)
	GetByID(ctx context.Context, id int64) (*model.Vendor, error)
	GetByEmail(ctx context.Context, email string) (*model.Vendor, error)
}

// Deduper suppresses redelivered events.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

// Cache stores JSON values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}
