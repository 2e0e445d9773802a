package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

type userRepo struct{ db *DB }

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Interests = append([]string(nil), u.Interests...)
	c.FollowedClubs = append([]uuid.UUID(nil), u.FollowedClubs...)
	return &c
}

func (r *userRepo) Create(_ context.Context, u *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range r.db.users {
		if strings.ToLower(existing.Email) == email {
			return store.ErrDuplicateEmail
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := r.db.now()
	u.Email = email
	u.CreatedAt, u.UpdatedAt = now, now
	r.db.users[u.ID] = cloneUser(u)
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.db.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *userRepo) Update(_ context.Context, u *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	next := cloneUser(u)
	next.Email = cur.Email
	next.Password = cur.Password
	next.Role = cur.Role
	next.FollowedClubs = cur.FollowedClubs
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = r.db.now()
	r.db.users[u.ID] = next
	return nil
}

func (r *userRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return r.mutate(id, func(u *models.User) { u.Password = passwordHash })
}

func (r *userRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return r.mutate(id, func(u *models.User) { u.IsActive = active })
}

func (r *userRepo) TouchLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(u *models.User) { u.LastLogin = &at })
}

func (r *userRepo) mutate(id uuid.UUID, fn func(u *models.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = r.db.now()
	return nil
}

func (r *userRepo) ListByRole(_ context.Context, role models.Role) ([]*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.User
	for _, u := range r.db.users {
		if role == "" || u.Role == role {
			list = append(list, cloneUser(u))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (r *userRepo) CountByRole(_ context.Context) (map[models.Role]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[models.Role]int)
	for _, u := range r.db.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (r *userRepo) Follow(_ context.Context, userID, organizerID uuid.UUID) error {
	return r.mutateFollow(userID, organizerID, true)
}

func (r *userRepo) Unfollow(_ context.Context, userID, organizerID uuid.UUID) error {
	return r.mutateFollow(userID, organizerID, false)
}

func (r *userRepo) mutateFollow(userID, organizerID uuid.UUID, follow bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := r.db.users[organizerID]; !ok {
		return store.ErrNotFound
	}
	kept := u.FollowedClubs[:0]
	for _, id := range u.FollowedClubs {
		if id != organizerID {
			kept = append(kept, id)
		}
	}
	if follow {
		kept = append(kept, organizerID)
	}
	u.FollowedClubs = kept
	return nil
}
