package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"vendordesk/internal/model"
	"vendordesk/internal/thread"
	"vendordesk/pkg/metrics"
)

type EmailFilter struct {
	Category          model.EmailCategory
	IsShippingRequest *bool
	Limit             int
	Offset            int
}

type EmailRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewEmailRepository(db *pgxpool.Pool, logger *zap.Logger) *EmailRepository {
	return &EmailRepository{db: db, logger: logger}
}

const emailColumns = `id, message_id, thread_id, sender_email, sender_name, subject, body,
	category, is_shipping_request, status, is_reply, is_forwarded, received_at, created_at, updated_at`

func scanEmail(row scanner) (model.Email, error) {
	var (
		e          model.Email
		threadID   *string
		receivedAt time.Time
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := row.Scan(
		&e.ID,
		&e.MessageID,
		&threadID,
		&e.SenderEmail,
		&e.SenderName,
		&e.Subject,
		&e.Body,
		&e.Category,
		&e.IsShippingRequest,
		&e.Status,
		&e.IsReply,
		&e.IsForwarded,
		&receivedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return e, err
	}
	e.ThreadID = deref(threadID)
	e.ReceivedAt = model.NewTimestamp(receivedAt)
	e.CreatedAt = model.NewTimestamp(createdAt)
	e.UpdatedAt = model.NewTimestamp(updatedAt)
	e.Responses = []model.EmailReply{}
	return e, nil
}

func (r *EmailRepository) List(ctx context.Context, f EmailFilter) ([]model.Email, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "emails", time.Since(start)) }()

	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.IsShippingRequest != nil {
		args = append(args, *f.IsShippingRequest)
		where = append(where, fmt.Sprintf("is_shipping_request = $%d", len(args)))
	}

	query := `SELECT ` + emailColumns + ` FROM emails`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(f.Limit), max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY received_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	r.logger.Debug("Listing emails",
		zap.String("category", string(f.Category)),
		zap.Int("limit", clampLimit(f.Limit)),
		zap.Int("offset", f.Offset),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query emails", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	emails := []model.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			r.logger.Error("Failed to scan email row", zap.Error(err))
			return nil, err
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachResponses(ctx, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func (r *EmailRepository) GetByID(ctx context.Context, id int64) (*model.Email, error) {
	return r.getOne(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, id)
}

func (r *EmailRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	return r.getOne(ctx, `SELECT `+emailColumns+` FROM emails WHERE message_id = $1`, messageID)
}

func (r *EmailRepository) getOne(ctx context.Context, query string, arg any) (*model.Email, error) {
	e, err := scanEmail(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapErr(err)
	}
	emails := []model.Email{e}
	if err := r.attachResponses(ctx, emails); err != nil {
		return nil, err
	}
	return &emails[0], nil
}

// attachResponses loads the operator replies of a page of emails in one query.
func (r *EmailRepository) attachResponses(ctx context.Context, emails []model.Email) error {
	if len(emails) == 0 {
		return nil
	}
	ids := make([]int64, len(emails))
	pos := make(map[int64][]int, len(emails))
	for i, e := range emails {
		ids[i] = e.ID
		pos[e.ID] = append(pos[e.ID], i)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, email_id, response_message_id, subject, body, sent_at
		FROM email_responses
		WHERE email_id = ANY($1)
		ORDER BY sent_at ASC, id ASC
	`, ids)
	if err != nil {
		r.logger.Error("Failed to query email responses", zap.Error(err))
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reply     model.EmailReply
			emailID   int64
			messageID *string
			sentAt    time.Time
		)
		if err := rows.Scan(&reply.ID, &emailID, &messageID, &reply.Subject, &reply.Body, &sentAt); err != nil {
			return err
		}
		reply.MessageID = deref(messageID)
		reply.SentAt = model.NewTimestamp(sentAt)
		for _, i := range pos[emailID] {
			emails[i].Responses = append(emails[i].Responses, reply)
		}
	}
	return rows.Err()
}

// InsertTx stores e inside tx unless its message id is already known. It
// reports whether a row was written.
func (r *EmailRepository) InsertTx(ctx context.Context, tx pgx.Tx, e *model.Email) (bool, error) {
	r.logger.Debug("Inserting email",
		zap.String("message_id", e.MessageID),
		zap.String("category", string(e.Category)),
	)
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = model.NewTimestamp(time.Now().UTC())
	}

	var createdAt, updatedAt time.Time
	err := tx.QueryRow(ctx, `
		INSERT INTO emails (message_id, thread_id, sender_email, sender_name, subject, body,
			category, is_shipping_request, status, is_reply, is_forwarded, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		e.MessageID,
		nullIfEmpty(e.ThreadID),
		e.SenderEmail,
		e.SenderName,
		e.Subject,
		e.Body,
		e.Category,
		e.IsShippingRequest,
		e.Status,
		e.IsReply,
		e.IsForwarded,
		e.ReceivedAt.Time,
	).Scan(&e.ID, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("Email already stored", zap.String("message_id", e.MessageID))
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert email", zap.String("message_id", e.MessageID), zap.Error(err))
		return false, err
	}
	e.CreatedAt = model.NewTimestamp(createdAt)
	e.UpdatedAt = model.NewTimestamp(updatedAt)
	r.logger.Info("Email inserted successfully", zap.Int64("email_id", e.ID))
	return true, nil
}

// ListByThread returns every stored email of the thread with the exported id,
// oldest first, with operator replies attached.
func (r *EmailRepository) ListByThread(ctx context.Context, threadID string) ([]model.Email, error) {
	l := thread.LookupFor(threadID)
	args := []any{l.ThreadID}
	cond := `thread_id = $1`
	if l.MessageID != "" {
		args = append(args, l.MessageID)
		cond += fmt.Sprintf(` OR (COALESCE(TRIM(thread_id), '') = '' AND TRIM(message_id) = $%d)`, len(args))
	}
	if l.EmailID > 0 {
		args = append(args, l.EmailID)
		cond += fmt.Sprintf(` OR (COALESCE(TRIM(thread_id), '') = '' AND TRIM(message_id) = '' AND id = $%d)`, len(args))
	}
	return r.listWhere(ctx, cond, args...)
}

// ListByThreadIDs returns every stored email belonging to any of threadIDs.
func (r *EmailRepository) ListByThreadIDs(ctx context.Context, threadIDs []string) ([]model.Email, error) {
	if len(threadIDs) == 0 {
		return []model.Email{}, nil
	}
	return r.listWhere(ctx, `thread_id = ANY($1)`, threadIDs)
}

func (r *EmailRepository) listWhere(ctx context.Context, cond string, args ...any) ([]model.Email, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "emails", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `SELECT `+emailColumns+` FROM emails WHERE `+cond+` ORDER BY received_at ASC, id ASC`, args...)
	if err != nil {
		r.logger.Error("Failed to query thread emails", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	emails := []model.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachResponses(ctx, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// Totals counts all emails and the ones classified as shipping requests.
// The category column is authoritative; is_shipping_request is not consulted.
func (r *EmailRepository) Totals(ctx context.Context) (model.EmailTotals, error) {
	var t model.EmailTotals
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE category = 'shipping_request')
		FROM emails
	`).Scan(&t.Total, &t.ShippingRequests)
	if err != nil {
		r.logger.Error("Failed to count emails", zap.Error(err))
		return t, err
	}
	return t, nil
}

// InsertReplyTx stores an operator reply against emailID inside tx.
func (r *EmailRepository) InsertReplyTx(ctx context.Context, tx pgx.Tx, emailID int64, reply *model.EmailReply) error {
	var sentAt time.Time
	err := tx.QueryRow(ctx, `
		INSERT INTO email_responses (email_id, response_message_id, subject, body, response_type)
		VALUES ($1, $2, $3, $4, 'operator_reply')
		RETURNING id, sent_at
	`, emailID, nullIfEmpty(reply.MessageID), reply.Subject, reply.Body).Scan(&reply.ID, &sentAt)
	if err != nil {
		r.logger.Error("Failed to insert email response", zap.Int64("email_id", emailID), zap.Error(err))
		return mapErr(err)
	}
	reply.SentAt = model.NewTimestamp(sentAt)
	return nil
}
