package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// RegistrationRepository handles registration persistence and the event counters it drives.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

const registrationColumns = `r.id, r.event_id, r.user_id, r.team_id, r.status, r.ticket_id, r.form_responses,
	r.merchandise, r.payment, r.attendance_marked, r.marked_at, r.marked_by, r.scan_count, r.scan_history,
	r.registered_at, r.cancelled_at, r.cancellation_reason, r.updated_at`

func scanRegistration(row rowScanner, extra ...any) (*models.Registration, error) {
	var reg models.Registration
	var form, merch, payment, history []byte
	dest := []any{&reg.ID, &reg.EventID, &reg.UserID, &reg.TeamID, &reg.Status, &reg.TicketID, &form,
		&merch, &payment, &reg.Attendance.Marked, &reg.Attendance.MarkedAt, &reg.Attendance.MarkedBy,
		&reg.Attendance.ScanCount, &history, &reg.RegisteredAt, &reg.CancelledAt, &reg.CancellationReason,
		&reg.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, mapError(err)
	}
	if err := unmarshalJSON(form, &reg.FormResponses); err != nil {
		return nil, err
	}
	if len(merch) > 0 {
		reg.Merchandise = &models.MerchandiseSelection{}
		if err := unmarshalJSON(merch, reg.Merchandise); err != nil {
			return nil, err
		}
	}
	if err := unmarshalJSON(payment, &reg.Payment); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(history, &reg.Attendance.ScanHistory); err != nil {
		return nil, err
	}
	return &reg, nil
}

func insertRegistration(ctx context.Context, q querier, reg *models.Registration) error {
	form, err := marshalJSON(reg.FormResponses)
	if err != nil {
		return err
	}
	merch, err := marshalJSON(reg.Merchandise)
	if err != nil {
		return err
	}
	payment, err := json.Marshal(reg.Payment)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}
	const stmt = `INSERT INTO registrations (event_id, user_id, team_id, status, ticket_id, form_responses,
		merchandise, payment, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, updated_at`
	err = q.QueryRow(ctx, stmt, reg.EventID, reg.UserID, reg.TeamID, string(reg.Status), reg.TicketID, form,
		merch, payment, reg.RegisteredAt).Scan(&reg.ID, &reg.UpdatedAt)
	return mapError(err)
}

// CreateIndividual locks the event, re-checks the reservation, inserts the registration and
// updates the count, stock and form lock in one transaction.
func (r *RegistrationRepository) CreateIndividual(ctx context.Context, reg *models.Registration, res store.Reservation) (*models.Event, error) {
	var out *models.Event
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ev, err := getEventForUpdate(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		if res.Check != nil {
			if err := res.Check(ev.Clone()); err != nil {
				return err
			}
		}
		if !ev.HasRoomFor(1) {
			return store.ErrConflict
		}
		if res.Quantity > 0 && (ev.Merchandise == nil || ev.Merchandise.StockQuantity < res.Quantity) {
			return store.ErrConflict
		}
		if err := insertRegistration(ctx, tx, reg); err != nil {
			return err
		}
		ev.RegistrationCount++
		if res.Quantity > 0 {
			ev.Merchandise.StockQuantity -= res.Quantity
		}
		if ev.HasCustomForm() {
			ev.CustomForm.IsLocked = true
		}
		if err := writeEvent(ctx, tx, ev); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// GetByID returns a registration by ID.
func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return scanRegistration(r.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations r WHERE r.id = $1`, id))
}

// GetByTicketID returns the registration holding the ticket.
func (r *RegistrationRepository) GetByTicketID(ctx context.Context, ticketID string) (*models.Registration, error) {
	return scanRegistration(r.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations r WHERE r.ticket_id = $1`, ticketID))
}

// FindActive returns the non-cancelled registration for (event, user), or nil.
func (r *RegistrationRepository) FindActive(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations r
		WHERE r.event_id = $1 AND r.user_id = $2 AND r.status <> 'Cancelled'`
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, eventID, userID))
	if err == store.ErrNotFound {
		return nil, nil
	}
	return reg, err
}

// ListByUser returns the user's registrations, newest first.
func (r *RegistrationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+registrationColumns+` FROM registrations r
		WHERE r.user_id = $1 ORDER BY r.registered_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// ListByEvent returns the event's registrations with participant name and email.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, f models.RegistrationFilter) ([]*models.RegistrationDetail, error) {
	where := []string{"r.event_id = $1"}
	args := []any{eventID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.Attended != nil {
		args = append(args, *f.Attended)
		where = append(where, fmt.Sprintf("r.attendance_marked = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		p := fmt.Sprintf("$%d", len(args))
		where = append(where, "(u.email ILIKE "+p+" OR u.first_name ILIKE "+p+" OR u.last_name ILIKE "+p+" OR r.ticket_id ILIKE "+p+")")
	}
	q := `SELECT ` + registrationColumns + `,
		COALESCE(NULLIF(u.organizer_name, ''), TRIM(u.first_name || ' ' || u.last_name)), u.email
		FROM registrations r JOIN users u ON u.id = r.user_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.registered_at DESC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RegistrationDetail
	for rows.Next() {
		var name, email string
		reg, err := scanRegistration(rows, &name, &email)
		if err != nil {
			return nil, err
		}
		list = append(list, &models.RegistrationDetail{Registration: *reg, ParticipantName: name, ParticipantEmail: email})
	}
	return list, rows.Err()
}

// Cancel marks the registration cancelled and releases its seat and stock.
func (r *RegistrationRepository) Cancel(ctx context.Context, id uuid.UUID, fn func(reg *models.Registration) error, reason string, at time.Time) (*models.Registration, error) {
	var out *models.Registration
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		reg, err := scanRegistration(tx.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations r WHERE r.id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(reg.Clone()); err != nil {
			return err
		}
		if !reg.IsActive() {
			return store.ErrConflict
		}
		ev, err := getEventForUpdate(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		const stmt = `UPDATE registrations SET status = 'Cancelled', cancelled_at = $2, cancellation_reason = $3,
			updated_at = NOW() WHERE id = $1 RETURNING updated_at`
		if err := tx.QueryRow(ctx, stmt, id, at, reason).Scan(&reg.UpdatedAt); err != nil {
			return err
		}
		if ev.RegistrationCount > 0 {
			ev.RegistrationCount--
		}
		if reg.Merchandise != nil && ev.Merchandise != nil {
			ev.Merchandise.StockQuantity += reg.Merchandise.Quantity
		}
		if err := writeEvent(ctx, tx, ev); err != nil {
			return err
		}
		reg.Status = models.RegistrationCancelled
		reg.CancelledAt = &at
		reg.CancellationReason = reason
		out = reg
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// MarkAttendance marks attendance once; the WHERE clause is the guard.
func (r *RegistrationRepository) MarkAttendance(ctx context.Context, id uuid.UUID, scan models.ScanEntry) (*models.Registration, error) {
	entry, err := json.Marshal([]models.ScanEntry{scan})
	if err != nil {
		return nil, fmt.Errorf("marshal scan: %w", err)
	}
	const q = `UPDATE registrations r SET attendance_marked = TRUE, marked_at = $2, marked_by = $3,
		scan_count = r.scan_count + 1, scan_history = r.scan_history || $4::jsonb, status = 'Attended', updated_at = NOW()
		WHERE r.id = $1 AND r.attendance_marked = FALSE AND r.status IN ('Registered', 'Attended')
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, id, scan.ScannedAt, scan.ScannedBy, entry))
	if err == store.ErrNotFound {
		return nil, store.ErrConflict
	}
	return reg, err
}

// AppendScan records a rejected scan attempt.
func (r *RegistrationRepository) AppendScan(ctx context.Context, id uuid.UUID, scan models.ScanEntry) error {
	entry, err := json.Marshal([]models.ScanEntry{scan})
	if err != nil {
		return fmt.Errorf("marshal scan: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE registrations SET scan_count = scan_count + 1,
		scan_history = scan_history || $2::jsonb WHERE id = $1`, id, entry)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdatePayment locks the registration and writes back its payment and status.
func (r *RegistrationRepository) UpdatePayment(ctx context.Context, id uuid.UUID, fn func(reg *models.Registration) error) (*models.Registration, error) {
	var out *models.Registration
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		reg, err := scanRegistration(tx.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations r WHERE r.id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(reg); err != nil {
			return err
		}
		payment, err := json.Marshal(reg.Payment)
		if err != nil {
			return fmt.Errorf("marshal payment: %w", err)
		}
		const stmt = `UPDATE registrations SET payment = $2, status = $3, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
		if err := tx.QueryRow(ctx, stmt, id, payment, string(reg.Status)).Scan(&reg.UpdatedAt); err != nil {
			return err
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// AttendanceCounts returns active registrations and how many were marked attended.
func (r *RegistrationRepository) AttendanceCounts(ctx context.Context, eventID uuid.UUID) (total, attended int, err error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE attendance_marked)
		FROM registrations WHERE event_id = $1 AND status <> 'Cancelled'`
	err = r.pool.QueryRow(ctx, q, eventID).Scan(&total, &attended)
	return total, attended, err
}

// CountActive returns the number of non-cancelled registrations.
func (r *RegistrationRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE status <> 'Cancelled'`).Scan(&n)
	return n, err
}
