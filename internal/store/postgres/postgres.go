// Package postgres implements the Entity Store on PostgreSQL with pgx.
// Guarded operations lock the affected rows with SELECT ... FOR UPDATE inside a
// transaction and re-check their preconditions under the lock.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pmjarvis/felicity-ems/internal/store"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgForeignKey      = "23503"

	constraintUsersEmail         = "users_email_key"
	constraintActiveRegistration = "uq_registrations_event_user_active"
	constraintTicketID           = "registrations_ticket_id_key"
	constraintInviteCode         = "teams_invite_code_key"
	constraintAcceptedMember     = "uq_team_members_event_user_accepted"
	constraintPendingReset       = "uq_password_resets_pending"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// New returns a store backed by the given pool.
func New(pool *pgxpool.Pool) *store.Store {
	return &store.Store{
		Users:            &UserRepository{pool: pool},
		Events:           &EventRepository{pool: pool},
		Registrations:    &RegistrationRepository{pool: pool},
		Teams:            &TeamRepository{pool: pool},
		Messages:         &MessageRepository{pool: pool},
		PasswordResets:   &PasswordResetRepository{pool: pool},
		NotificationLogs: &NotificationLogRepository{pool: pool},
	}
}

// mapError translates pgx errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintUsersEmail:
			return store.ErrDuplicateEmail
		case constraintActiveRegistration:
			return store.ErrDuplicateRegistration
		case constraintTicketID:
			return store.ErrDuplicateTicket
		case constraintInviteCode:
			return store.ErrDuplicateInviteCode
		case constraintAcceptedMember:
			return store.ErrDuplicateMembership
		case constraintPendingReset:
			return store.ErrConflict
		}
	case pgCheckViolation, pgForeignKey:
		return store.ErrConflict
	}
	return err
}

// marshalJSON encodes v for a nullable JSONB column; nil values become SQL NULL.
func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}
