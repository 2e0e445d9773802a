package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// MessageRepository handles event chat messages.
type MessageRepository struct {
	pool *pgxpool.Pool
}

const messageColumns = `id, event_id, sender_id, sender_name, sender_role, body, is_pinned, is_deleted, created_at, updated_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.EventID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.Body, &m.IsPinned,
		&m.IsDeleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	const q = `INSERT INTO messages (event_id, sender_id, sender_name, sender_role, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, m.EventID, m.SenderID, m.SenderName, string(m.SenderRole), m.Body).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return mapError(err)
}

// GetByID returns a message by ID.
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

// ListByEvent returns the latest limit visible messages in chronological order.
func (r *MessageRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]*models.Message, error) {
	const q = `SELECT * FROM (
		SELECT ` + messageColumns + ` FROM messages
		WHERE event_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	) latest ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// SoftDelete hides a message from listings.
func (r *MessageRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TogglePin flips the pinned flag of a visible message.
func (r *MessageRepository) TogglePin(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `UPDATE messages SET is_pinned = NOT is_pinned, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted RETURNING `+messageColumns, id))
}

// PasswordResetRepository handles organizer password reset requests.
type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

const resetColumns = `id, organizer_id, reason, status, admin_comment, reviewed_by, reviewed_at, created_at`

func scanReset(row rowScanner) (*models.PasswordResetRequest, error) {
	var req models.PasswordResetRequest
	err := row.Scan(&req.ID, &req.OrganizerID, &req.Reason, &req.Status, &req.AdminComment, &req.ReviewedBy,
		&req.ReviewedAt, &req.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &req, nil
}

// Create inserts a pending request; a second pending request for the organizer is a conflict.
func (r *PasswordResetRepository) Create(ctx context.Context, req *models.PasswordResetRequest) error {
	const q = `INSERT INTO password_reset_requests (organizer_id, reason, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, req.OrganizerID, req.Reason, string(req.Status)).Scan(&req.ID, &req.CreatedAt)
	return mapError(err)
}

// GetByID returns a request by ID.
func (r *PasswordResetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PasswordResetRequest, error) {
	return scanReset(r.pool.QueryRow(ctx, `SELECT `+resetColumns+` FROM password_reset_requests WHERE id = $1`, id))
}

// List returns requests with the given status, or all when status is empty.
func (r *PasswordResetRepository) List(ctx context.Context, status models.ResetStatus) ([]*models.PasswordResetRequest, error) {
	return r.list(ctx, `SELECT `+resetColumns+` FROM password_reset_requests
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, string(status))
}

// ListByOrganizer returns an organizer's requests, newest first.
func (r *PasswordResetRepository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]*models.PasswordResetRequest, error) {
	return r.list(ctx, `SELECT `+resetColumns+` FROM password_reset_requests
		WHERE organizer_id = $1 ORDER BY created_at DESC`, organizerID)
}

func (r *PasswordResetRepository) list(ctx context.Context, q string, arg any) ([]*models.PasswordResetRequest, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PasswordResetRequest
	for rows.Next() {
		req, err := scanReset(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

// Review locks the request, applies fn and writes the review fields back.
func (r *PasswordResetRepository) Review(ctx context.Context, id uuid.UUID, fn func(req *models.PasswordResetRequest) error) (*models.PasswordResetRequest, error) {
	var out *models.PasswordResetRequest
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		req, err := scanReset(tx.QueryRow(ctx, `SELECT `+resetColumns+` FROM password_reset_requests WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(req); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE password_reset_requests SET status = $2, admin_comment = $3, reviewed_by = $4,
			reviewed_at = $5 WHERE id = $1`, id, string(req.Status), req.AdminComment, req.ReviewedBy, req.ReviewedAt)
		if err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// NotificationLogRepository records notification deliveries.
type NotificationLogRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a delivery record.
func (r *NotificationLogRepository) Create(ctx context.Context, l *models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (event_id, registration_id, kind, channel, recipient, subject, status,
		attempt, sent_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, l.EventID, l.RegistrationID, l.Kind, l.Channel, l.Recipient, l.Subject,
		l.Status, l.Attempt, l.SentAt, l.ErrorMessage).Scan(&l.ID, &l.CreatedAt)
	return mapError(err)
}

// ListByEvent returns the event's delivery records, newest first.
func (r *NotificationLogRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.NotificationLog, error) {
	const q = `SELECT id, event_id, registration_id, kind, channel, recipient, subject, status, attempt, sent_at,
		error_message, created_at
		FROM notification_logs WHERE event_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		if err := rows.Scan(&l.ID, &l.EventID, &l.RegistrationID, &l.Kind, &l.Channel, &l.Recipient, &l.Subject,
			&l.Status, &l.Attempt, &l.SentAt, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
