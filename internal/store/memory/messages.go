package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

type messageRepo struct{ db *DB }

func (r *messageRepo) Create(_ context.Context, m *models.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := r.db.now()
	m.CreatedAt, m.UpdatedAt = now, now
	c := *m
	r.db.messages[m.ID] = &c
	return nil
}

func (r *messageRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (r *messageRepo) ListByEvent(_ context.Context, eventID uuid.UUID, limit int) ([]*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.Message
	for _, m := range r.db.messages {
		if m.EventID == eventID && !m.IsDeleted {
			c := *m
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list, nil
}

func (r *messageRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	m.IsDeleted = true
	m.UpdatedAt = r.db.now()
	return nil
}

func (r *messageRepo) TogglePin(_ context.Context, id uuid.UUID) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok || m.IsDeleted {
		return nil, store.ErrNotFound
	}
	m.IsPinned = !m.IsPinned
	m.UpdatedAt = r.db.now()
	c := *m
	return &c, nil
}

type resetRepo struct{ db *DB }

func (r *resetRepo) Create(_ context.Context, req *models.PasswordResetRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.resets {
		if existing.OrganizerID == req.OrganizerID && existing.Status == models.ResetPending {
			return store.ErrConflict
		}
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = r.db.now()
	c := *req
	r.db.resets[req.ID] = &c
	return nil
}

func (r *resetRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PasswordResetRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.resets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *req
	return &c, nil
}

func (r *resetRepo) List(_ context.Context, status models.ResetStatus) ([]*models.PasswordResetRequest, error) {
	return r.filter(func(req *models.PasswordResetRequest) bool { return status == "" || req.Status == status }), nil
}

func (r *resetRepo) ListByOrganizer(_ context.Context, organizerID uuid.UUID) ([]*models.PasswordResetRequest, error) {
	return r.filter(func(req *models.PasswordResetRequest) bool { return req.OrganizerID == organizerID }), nil
}

func (r *resetRepo) filter(keep func(*models.PasswordResetRequest) bool) []*models.PasswordResetRequest {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.PasswordResetRequest
	for _, req := range r.db.resets {
		if keep(req) {
			c := *req
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func (r *resetRepo) Review(_ context.Context, id uuid.UUID, fn func(req *models.PasswordResetRequest) error) (*models.PasswordResetRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.resets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	r.db.resets[id] = &next
	c := next
	return &c, nil
}

type logRepo struct{ db *DB }

func (r *logRepo) Create(_ context.Context, l *models.NotificationLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = r.db.now()
	c := *l
	r.db.logs = append(r.db.logs, &c)
	return nil
}

func (r *logRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*models.NotificationLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.NotificationLog
	for i := len(r.db.logs) - 1; i >= 0; i-- {
		l := r.db.logs[i]
		if l.EventID != nil && *l.EventID == eventID {
			c := *l
			list = append(list, &c)
		}
	}
	return list, nil
}
