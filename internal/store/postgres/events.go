package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// EventRepository handles event persistence.
type EventRepository struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, organizer_id, name, description, type, status, eligibility, registration_deadline,
	start_date, end_date, registration_limit, registration_count, registration_fee, tags, custom_form,
	is_team_event, min_team_size, max_team_size, merchandise, venue, banner_image, views, created_at, updated_at`

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var form, merch []byte
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Type, &e.Status, &e.Eligibility,
		&e.RegistrationDeadline, &e.StartDate, &e.EndDate, &e.RegistrationLimit, &e.RegistrationCount,
		&e.RegistrationFee, &e.Tags, &form, &e.IsTeamEvent, &e.MinTeamSize, &e.MaxTeamSize, &merch,
		&e.Venue, &e.BannerImage, &e.Views, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if len(form) > 0 {
		e.CustomForm = &models.CustomForm{}
		if err := unmarshalJSON(form, e.CustomForm); err != nil {
			return nil, err
		}
	}
	if len(merch) > 0 {
		e.Merchandise = &models.Merchandise{}
		if err := unmarshalJSON(merch, e.Merchandise); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	form, err := marshalJSON(e.CustomForm)
	if err != nil {
		return err
	}
	merch, err := marshalJSON(e.Merchandise)
	if err != nil {
		return err
	}
	const q = `INSERT INTO events (organizer_id, name, description, type, status, eligibility, registration_deadline,
		start_date, end_date, registration_limit, registration_fee, tags, custom_form, is_team_event,
		min_team_size, max_team_size, merchandise, venue, banner_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, registration_count, views, created_at, updated_at`
	err = r.pool.QueryRow(ctx, q, e.OrganizerID, e.Name, e.Description, string(e.Type), string(e.Status),
		string(e.Eligibility), e.RegistrationDeadline, e.StartDate, e.EndDate, e.RegistrationLimit,
		e.RegistrationFee, nonNil(e.Tags), form, e.IsTeamEvent, e.MinTeamSize, e.MaxTeamSize, merch,
		e.Venue, e.BannerImage).
		Scan(&e.ID, &e.RegistrationCount, &e.Views, &e.CreatedAt, &e.UpdatedAt)
	return mapError(err)
}

// GetByID returns an event by ID.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func getEventForUpdate(ctx context.Context, q querier, id uuid.UUID) (*models.Event, error) {
	return scanEvent(q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
}

// List returns events matching the filter, soonest first.
func (r *EventRepository) List(ctx context.Context, f models.EventFilter) ([]*models.Event, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(string(f.Type)))
	}
	if f.Eligibility != "" {
		where = append(where, "eligibility = "+arg(string(f.Eligibility)))
	}
	if len(f.OrganizerIDs) > 0 {
		where = append(where, "organizer_id = ANY("+arg(uuidStrings(f.OrganizerIDs))+"::uuid[])")
	}
	if len(f.Tags) > 0 {
		where = append(where, "tags && "+arg(f.Tags))
	}
	if f.From != nil {
		where = append(where, "start_date >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "start_date <= "+arg(*f.To))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+" OR array_to_string(tags, ' ') ILIKE "+p+")")
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_date ASC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Update locks the event row, applies fn and writes the result back.
func (r *EventRepository) Update(ctx context.Context, id uuid.UUID, fn func(e *models.Event) error) (*models.Event, error) {
	var out *models.Event
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := getEventForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID, next.OrganizerID = cur.ID, cur.OrganizerID
		if err := writeEvent(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// writeEvent persists every mutable column except views.
func writeEvent(ctx context.Context, q querier, e *models.Event) error {
	form, err := marshalJSON(e.CustomForm)
	if err != nil {
		return err
	}
	merch, err := marshalJSON(e.Merchandise)
	if err != nil {
		return err
	}
	const stmt = `UPDATE events SET name = $2, description = $3, type = $4, status = $5, eligibility = $6,
		registration_deadline = $7, start_date = $8, end_date = $9, registration_limit = $10,
		registration_count = $11, registration_fee = $12, tags = $13, custom_form = $14, is_team_event = $15,
		min_team_size = $16, max_team_size = $17, merchandise = $18, venue = $19, banner_image = $20,
		updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return q.QueryRow(ctx, stmt, e.ID, e.Name, e.Description, string(e.Type), string(e.Status), string(e.Eligibility),
		e.RegistrationDeadline, e.StartDate, e.EndDate, e.RegistrationLimit, e.RegistrationCount,
		e.RegistrationFee, nonNil(e.Tags), form, e.IsTeamEvent, e.MinTeamSize, e.MaxTeamSize, merch,
		e.Venue, e.BannerImage).Scan(&e.UpdatedAt)
}

// DeleteDraft deletes the event only while it is a draft with no registrations or teams.
func (r *EventRepository) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events
		WHERE id = $1 AND status = 'Draft' AND registration_count = 0
		AND NOT EXISTS (SELECT 1 FROM teams WHERE event_id = $1)
		AND NOT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1)`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

// IncrementViews bumps the public view counter.
func (r *EventRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET views = views + 1 WHERE id = $1`, id)
	return mapError(err)
}

// CountByOrganizer returns the number of events per organizer.
func (r *EventRepository) CountByOrganizer(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT organizer_id, COUNT(*) FROM events GROUP BY organizer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// CountByStatus returns the number of events per status.
func (r *EventRepository) CountByStatus(ctx context.Context) (map[models.EventStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.EventStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.EventStatus(status)] = n
	}
	return counts, rows.Err()
}
