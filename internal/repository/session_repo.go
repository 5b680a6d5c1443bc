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
	"vendordesk/internal/status"
	"vendordesk/pkg/metrics"
)

type SessionFilter struct {
	Status   model.SessionStatus
	VendorID *int64
	// Display narrows to one derived display status before paging.
	Display status.DisplayStatus
	// Complete selects finished (complete, completed) or unfinished labels.
	Complete *bool
	// Limit <= 0 returns every matching row.
	Limit  int
	Offset int
}

var completeStatuses = []string{string(model.SessionComplete), string(model.SessionCompleted)}

// sessionWhere builds the WHERE clauses of f. The display conditions mirror status.Resolve.
func sessionWhere(f SessionFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.VendorID != nil {
		args = append(args, *f.VendorID)
		where = append(where, fmt.Sprintf("vendor_id = $%d", len(args)))
	}
	if f.Complete != nil {
		args = append(args, completeStatuses)
		if *f.Complete {
			where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
		} else {
			where = append(where, fmt.Sprintf("NOT (status = ANY($%d))", len(args)))
		}
	}
	switch f.Display {
	case status.Unassigned:
		where = append(where, "vendor_id IS NULL")
	case status.Replied:
		where = append(where, "vendor_id IS NOT NULL AND vendor_replied_at IS NOT NULL")
	case status.PendingReply:
		where = append(where, "vendor_id IS NOT NULL AND vendor_replied_at IS NULL AND vendor_notified_at IS NOT NULL")
	case status.Assigned:
		where = append(where, "vendor_id IS NOT NULL AND vendor_replied_at IS NULL AND vendor_notified_at IS NULL")
	}
	return where, args
}

type SessionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(db *pgxpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

const sessionColumns = `id, email_id, vendor_id, vendor_notified_at, vendor_replied_at,
	vendor_reply_message_id, vendor_reply_content, status, missing_fields,
	sender_name, sender_address, sender_city, sender_state, sender_zipcode, sender_country, sender_phone,
	recipient_name, recipient_address, recipient_city, recipient_state, recipient_zipcode, recipient_country, recipient_phone,
	package_weight, package_dimensions, package_description, package_value,
	service_type, pickup_date, delivery_date, thread_id, subject,
	missing_info_updated_at, created_at, updated_at, completed_at`

func scanSession(row scanner) (model.ShipmentSession, error) {
	var (
		s              model.ShipmentSession
		replyMessageID *string
		replyContent   *string
		threadID       *string
		subject        *string
	)
	err := row.Scan(
		&s.ID,
		&s.EmailID,
		&s.VendorID,
		&s.VendorNotifiedAt,
		&s.VendorRepliedAt,
		&replyMessageID,
		&replyContent,
		&s.Status,
		&s.MissingFields,
		&s.SenderName,
		&s.SenderAddress,
		&s.SenderCity,
		&s.SenderState,
		&s.SenderZipcode,
		&s.SenderCountry,
		&s.SenderPhone,
		&s.RecipientName,
		&s.RecipientAddress,
		&s.RecipientCity,
		&s.RecipientState,
		&s.RecipientZipcode,
		&s.RecipientCountry,
		&s.RecipientPhone,
		&s.PackageWeight,
		&s.PackageDimensions,
		&s.PackageDescription,
		&s.PackageValue,
		&s.ServiceType,
		&s.PickupDate,
		&s.DeliveryDate,
		&threadID,
		&subject,
		&s.MissingInfoUpdatedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return s, err
	}
	s.VendorReplyMessageID = deref(replyMessageID)
	s.VendorReplyContent = deref(replyContent)
	s.ThreadID = deref(threadID)
	s.Subject = deref(subject)
	if s.MissingFields == nil {
		s.MissingFields = []string{}
	}
	return s, nil
}

func (r *SessionRepository) List(ctx context.Context, f SessionFilter) ([]model.ShipmentSession, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "shipment_sessions", time.Since(start)) }()

	where, args := sessionWhere(f)

	query := `SELECT ` + sessionColumns + ` FROM shipment_sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, min(f.Limit, maxLimit), max(f.Offset, 0))
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	r.logger.Debug("Listing sessions",
		zap.String("status", string(f.Status)),
		zap.String("display", string(f.Display)),
		zap.Int("limit", f.Limit),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query sessions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	sessions := []model.ShipmentSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			r.logger.Error("Failed to scan session row", zap.Error(err))
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.ShipmentSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM shipment_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// AssignVendorTx sets the vendor and clears notification and reply state left
// over from a previous assignment.
func (r *SessionRepository) AssignVendorTx(ctx context.Context, tx pgx.Tx, sessionID, vendorID int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE shipment_sessions
		SET vendor_id = $2,
		    vendor_notified_at = NULL,
		    vendor_replied_at = NULL,
		    vendor_reply_message_id = NULL,
		    vendor_reply_content = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, sessionID, vendorID)
	if err != nil {
		r.logger.Error("Failed to assign vendor",
			zap.Int64("session_id", sessionID),
			zap.Int64("vendor_id", vendorID),
			zap.Error(err),
		)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Vendor assigned",
		zap.Int64("session_id", sessionID),
		zap.Int64("vendor_id", vendorID),
	)
	return nil
}

// MarkNotified records the notification time if the session is still assigned to
// vendorID and not yet notified. It reports whether the row changed.
func (r *SessionRepository) MarkNotified(ctx context.Context, sessionID, vendorID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shipment_sessions
		SET vendor_notified_at = $3, updated_at = NOW()
		WHERE id = $1 AND vendor_id = $2 AND vendor_notified_at IS NULL
	`, sessionID, vendorID, at)
	if err != nil {
		r.logger.Error("Failed to mark session notified", zap.Int64("session_id", sessionID), zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LatestAwaitingReply returns the vendor's most recently notified session without a reply.
func (r *SessionRepository) LatestAwaitingReply(ctx context.Context, vendorID int64) (*model.ShipmentSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM shipment_sessions
		WHERE vendor_id = $1 AND vendor_notified_at IS NOT NULL AND vendor_replied_at IS NULL
		ORDER BY vendor_notified_at DESC, id DESC
		LIMIT 1
	`, vendorID))
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// MarkVendorRepliedTx records the vendor's reply inside tx. A session that
// already has a reply is left untouched.
func (r *SessionRepository) MarkVendorRepliedTx(ctx context.Context, tx pgx.Tx, sessionID int64, at time.Time, messageID, content string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE shipment_sessions
		SET vendor_replied_at = $2,
		    vendor_reply_message_id = $3,
		    vendor_reply_content = $4,
		    updated_at = NOW()
		WHERE id = $1 AND vendor_replied_at IS NULL
	`, sessionID, at, nullIfEmpty(messageID), content)
	if err != nil {
		r.logger.Error("Failed to mark vendor replied", zap.Int64("session_id", sessionID), zap.Error(err))
		return err
	}
	r.logger.Info("Vendor reply recorded",
		zap.Int64("session_id", sessionID),
		zap.Int64("rows_affected", tag.RowsAffected()),
	)
	return nil
}

// InsertTx creates the session for s.EmailID unless one exists. It reports
// whether a row was written.
func (r *SessionRepository) InsertTx(ctx context.Context, tx pgx.Tx, s *model.ShipmentSession, extracted map[string]string) (bool, error) {
	if s.MissingFields == nil {
		s.MissingFields = []string{}
	}
	if extracted == nil {
		extracted = map[string]string{}
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO shipment_sessions (email_id, status, missing_fields, extracted_data,
			sender_name, sender_address, sender_city, sender_state, sender_zipcode, sender_country, sender_phone,
			recipient_name, recipient_address, recipient_city, recipient_state, recipient_zipcode, recipient_country, recipient_phone,
			package_weight, package_dimensions, package_description, package_value, service_type,
			thread_id, subject, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (email_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		s.EmailID, s.Status, s.MissingFields, extracted,
		s.SenderName, s.SenderAddress, s.SenderCity, s.SenderState, s.SenderZipcode, s.SenderCountry, s.SenderPhone,
		s.RecipientName, s.RecipientAddress, s.RecipientCity, s.RecipientState, s.RecipientZipcode, s.RecipientCountry, s.RecipientPhone,
		s.PackageWeight, s.PackageDimensions, s.PackageDescription, s.PackageValue, s.ServiceType,
		nullIfEmpty(s.ThreadID), nullIfEmpty(s.Subject), s.CompletedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("Session already exists for email", zap.Int64("email_id", s.EmailID))
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert session", zap.Int64("email_id", s.EmailID), zap.Error(err))
		return false, mapErr(err)
	}
	r.logger.Info("Session created",
		zap.Int64("session_id", s.ID),
		zap.Int64("email_id", s.EmailID),
		zap.Strings("missing_fields", s.MissingFields),
	)
	return true, nil
}

// UpdateFieldsTx writes the shipment details, missing fields and status of s
// after a customer supplied more information.
func (r *SessionRepository) UpdateFieldsTx(ctx context.Context, tx pgx.Tx, s *model.ShipmentSession) error {
	tag, err := tx.Exec(ctx, `
		UPDATE shipment_sessions
		SET sender_name = $2, sender_address = $3, sender_city = $4, sender_state = $5,
		    sender_zipcode = $6, sender_country = $7, sender_phone = $8,
		    recipient_name = $9, recipient_address = $10, recipient_city = $11, recipient_state = $12,
		    recipient_zipcode = $13, recipient_country = $14, recipient_phone = $15,
		    package_description = $16,
		    status = $17,
		    missing_fields = $18,
		    completed_at = $19,
		    missing_info_updated_at = $20,
		    updated_at = NOW()
		WHERE id = $1
	`,
		s.ID,
		s.SenderName, s.SenderAddress, s.SenderCity, s.SenderState, s.SenderZipcode, s.SenderCountry, s.SenderPhone,
		s.RecipientName, s.RecipientAddress, s.RecipientCity, s.RecipientState, s.RecipientZipcode, s.RecipientCountry, s.RecipientPhone,
		s.PackageDescription,
		s.Status,
		s.MissingFields,
		s.CompletedAt,
		s.MissingInfoUpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update session fields", zap.Int64("session_id", s.ID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Session fields updated",
		zap.Int64("session_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.Strings("missing_fields", s.MissingFields),
	)
	return nil
}

// LatestIncompleteByThread returns the newest incomplete session opened in threadID.
func (r *SessionRepository) LatestIncompleteByThread(ctx context.Context, threadID string) (*model.ShipmentSession, error) {
	return r.latestIncomplete(ctx, `thread_id = $2`, threadID)
}

// LatestIncompleteBySubject returns the newest incomplete session whose subject
// contains subject, ignoring case.
func (r *SessionRepository) LatestIncompleteBySubject(ctx context.Context, subject string) (*model.ShipmentSession, error) {
	return r.latestIncomplete(ctx, `subject ILIKE $2`, "%"+escapeLike(subject)+"%")
}

func (r *SessionRepository) latestIncomplete(ctx context.Context, cond string, arg string) (*model.ShipmentSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM shipment_sessions
		WHERE status = $1 AND `+cond+`
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, model.SessionIncomplete, arg))
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// UpdateStatus changes the stored lifecycle label. completed_at follows the label.
func (r *SessionRepository) UpdateStatus(ctx context.Context, sessionID int64, status model.SessionStatus) (*model.ShipmentSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `
		UPDATE shipment_sessions
		SET status = $2,
		    completed_at = CASE WHEN $3 THEN COALESCE(completed_at, NOW()) ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+sessionColumns, sessionID, status, status.IsComplete()))
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}
