package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// TeamRepository handles teams and their member rows.
type TeamRepository struct {
	pool *pgxpool.Pool
}

const teamColumns = `id, name, event_id, leader_id, invite_code, is_finalized, status, required_size,
	current_size, registered_at, created_at, updated_at`

func scanTeam(row rowScanner) (*models.Team, error) {
	var t models.Team
	err := row.Scan(&t.ID, &t.Name, &t.EventID, &t.LeaderID, &t.InviteCode, &t.IsFinalized, &t.Status,
		&t.RequiredSize, &t.CurrentSize, &t.RegisteredAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func loadMembers(ctx context.Context, q querier, t *models.Team) error {
	rows, err := q.Query(ctx, `SELECT user_id, status, joined_at, responded_at FROM team_members
		WHERE team_id = $1 ORDER BY position`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	t.Members = t.Members[:0]
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.UserID, &m.Status, &m.JoinedAt, &m.RespondedAt); err != nil {
			return err
		}
		t.Members = append(t.Members, m)
	}
	return rows.Err()
}

func getTeam(ctx context.Context, q querier, where string, arg any) (*models.Team, error) {
	t, err := scanTeam(q.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := loadMembers(ctx, q, t); err != nil {
		return nil, err
	}
	return t, nil
}

// writeMembers replaces the member rows of t, keeping list order in position.
func writeMembers(ctx context.Context, q querier, t *models.Team) error {
	if _, err := q.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, t.ID); err != nil {
		return err
	}
	const stmt = `INSERT INTO team_members (team_id, event_id, user_id, position, status, joined_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, m := range t.Members {
		if _, err := q.Exec(ctx, stmt, t.ID, t.EventID, m.UserID, i, string(m.Status), m.JoinedAt, m.RespondedAt); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func writeTeam(ctx context.Context, q querier, t *models.Team) error {
	const stmt = `UPDATE teams SET name = $2, leader_id = $3, is_finalized = $4, status = $5, required_size = $6,
		current_size = $7, registered_at = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := q.QueryRow(ctx, stmt, t.ID, t.Name, t.LeaderID, t.IsFinalized, string(t.Status), t.RequiredSize,
		t.CurrentSize, t.RegisteredAt).Scan(&t.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return writeMembers(ctx, q, t)
}

// Create inserts a team with its initial members.
func (r *TeamRepository) Create(ctx context.Context, t *models.Team) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO teams (name, event_id, leader_id, invite_code, is_finalized, status, required_size, current_size)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at`
		err := tx.QueryRow(ctx, q, t.Name, t.EventID, t.LeaderID, t.InviteCode, t.IsFinalized, string(t.Status),
			t.RequiredSize, t.CurrentSize).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
		return writeMembers(ctx, tx, t)
	})
	return mapError(err)
}

// GetByID returns a team with its members.
func (r *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return getTeam(ctx, r.pool, "id = $1", id)
}

// GetByInviteCode returns the team holding the invite code.
func (r *TeamRepository) GetByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	return getTeam(ctx, r.pool, "invite_code = $1", code)
}

// FindActiveForUser returns the team in which the user is an accepted member for the event, or nil.
func (r *TeamRepository) FindActiveForUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Team, error) {
	var teamID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT m.team_id FROM team_members m JOIN teams t ON t.id = m.team_id
		WHERE m.event_id = $1 AND m.user_id = $2 AND m.status = 'Accepted' AND t.status <> 'Cancelled'`,
		eventID, userID).Scan(&teamID)
	if err != nil {
		if err = mapError(err); err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return r.GetByID(ctx, teamID)
}

// ListForUser returns every team the user belongs to, newest first.
func (r *TeamRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams WHERE id IN (
		SELECT team_id FROM team_members WHERE user_id = $1 AND status <> 'Removed')
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	var list []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range list {
		if err := loadMembers(ctx, r.pool, t); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// lockTeam locks the team and then its event, in that order.
func lockTeam(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Team, *models.Event, error) {
	t, err := getTeam(ctx, tx, "id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, nil, err
	}
	ev, err := getEventForUpdate(ctx, tx, t.EventID)
	if err != nil {
		return nil, nil, err
	}
	return t, ev, nil
}

// Update runs fn on the locked team and event and persists the team.
func (r *TeamRepository) Update(ctx context.Context, id uuid.UUID, fn func(t *models.Team, e *models.Event) error) (*models.Team, error) {
	var out *models.Team
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, ev, err := lockTeam(ctx, tx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(next, ev); err != nil {
			return err
		}
		next.ID, next.EventID, next.InviteCode, next.CreatedAt = cur.ID, cur.EventID, cur.InviteCode, cur.CreatedAt
		if err := writeTeam(ctx, tx, next); err != nil {
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

// Finalize writes the team, its registrations and the event count in one transaction.
func (r *TeamRepository) Finalize(ctx context.Context, id uuid.UUID, fn func(t *models.Team, e *models.Event) ([]*models.Registration, error)) (*models.Team, []*models.Registration, error) {
	var team *models.Team
	var regs []*models.Registration
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, ev, err := lockTeam(ctx, tx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		created, err := fn(next, ev.Clone())
		if err != nil {
			return err
		}
		if cur.IsFinalized || !ev.HasRoomFor(len(created)) {
			return store.ErrConflict
		}
		for _, reg := range created {
			if err := insertRegistration(ctx, tx, reg); err != nil {
				return err
			}
		}
		ev.RegistrationCount += len(created)
		if len(created) > 0 && ev.HasCustomForm() {
			ev.CustomForm.IsLocked = true
		}
		if err := writeEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := writeTeam(ctx, tx, next); err != nil {
			return err
		}
		team, regs = next, created
		return nil
	})
	if err != nil {
		return nil, nil, mapError(err)
	}
	return team, regs, nil
}
