package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// UserRepository handles user persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, password_hash, role, first_name, last_name, participant_type, college_name,
	contact_number, interests, organizer_name, category, description, contact_email, discord_webhook,
	is_active, is_approved, last_login, created_at, updated_at,
	ARRAY(SELECT f.organizer_id::text FROM user_follows f WHERE f.user_id = users.id ORDER BY f.created_at)`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var follows []string
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Role, &u.FirstName, &u.LastName, &u.ParticipantType, &u.CollegeName,
		&u.ContactNumber, &u.Interests, &u.OrganizerName, &u.Category, &u.Description, &u.ContactEmail, &u.DiscordWebhook,
		&u.IsActive, &u.IsApproved, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt, &follows)
	if err != nil {
		return nil, mapError(err)
	}
	u.FollowedClubs = parseUUIDs(follows)
	return &u, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (email, password_hash, role, first_name, last_name, participant_type, college_name,
		contact_number, interests, organizer_name, category, description, contact_email, discord_webhook, is_active, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`
	u.Email = strings.ToLower(u.Email)
	err := r.pool.QueryRow(ctx, q, u.Email, u.Password, string(u.Role), u.FirstName, u.LastName, string(u.ParticipantType),
		u.CollegeName, u.ContactNumber, nonNil(u.Interests), u.OrganizerName, string(u.Category), u.Description,
		u.ContactEmail, u.DiscordWebhook, u.IsActive, u.IsApproved).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return mapError(err)
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

// Update writes the mutable profile fields.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	const q = `UPDATE users SET first_name = $2, last_name = $3, participant_type = $4, college_name = $5,
		contact_number = $6, interests = $7, organizer_name = $8, category = $9, description = $10,
		contact_email = $11, discord_webhook = $12, is_active = $13, is_approved = $14, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, u.ID, u.FirstName, u.LastName, string(u.ParticipantType), u.CollegeName,
		u.ContactNumber, nonNil(u.Interests), u.OrganizerName, string(u.Category), u.Description,
		u.ContactEmail, u.DiscordWebhook, u.IsActive, u.IsApproved)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// SetActive toggles soft deactivation.
func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

// TouchLogin records the last successful login.
func (r *UserRepository) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

func (r *UserRepository) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListByRole returns users with the given role, or all users when role is empty.
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE ($1 = '' OR role = $1) ORDER BY created_at`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// CountByRole returns the number of users per role.
func (r *UserRepository) CountByRole(ctx context.Context) (map[models.Role]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[models.Role(role)] = n
	}
	return counts, rows.Err()
}

// Follow adds organizerID to the user's followed clubs.
func (r *UserRepository) Follow(ctx context.Context, userID, organizerID uuid.UUID) error {
	const q = `INSERT INTO user_follows (user_id, organizer_id)
		SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM users WHERE id = $2)
		ON CONFLICT (user_id, organizer_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, userID, organizerID)
	return mapError(err)
}

// Unfollow removes organizerID from the user's followed clubs.
func (r *UserRepository) Unfollow(ctx context.Context, userID, organizerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_follows WHERE user_id = $1 AND organizer_id = $2`, userID, organizerID)
	return mapError(err)
}
