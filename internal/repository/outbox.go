package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"vendordesk/pkg/outbox"
)

// EventWriter records domain events in the outbox as part of a business transaction.
type EventWriter struct {
	repo *outbox.Repository
}

func NewEventWriter(repo *outbox.Repository) *EventWriter {
	return &EventWriter{repo: repo}
}

func (w *EventWriter) Enqueue(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	_, err := outbox.InsertEventInTx(ctx, tx, w.repo, aggregateType, &aggregateID, routingKey, payload)
	return err
}
