package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

type eventRepo struct{ db *DB }

func (r *eventRepo) Create(_ context.Context, e *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := r.db.now()
	e.CreatedAt, e.UpdatedAt = now, now
	r.db.events[e.ID] = e.Clone()
	return nil
}

func (r *eventRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *eventRepo) List(_ context.Context, f models.EventFilter) ([]*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.Event
	for _, e := range r.db.events {
		if matchEvent(e, f) {
			list = append(list, e.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartDate.Before(list[j].StartDate) })
	if f.Offset > 0 {
		if f.Offset >= len(list) {
			return nil, nil
		}
		list = list[f.Offset:]
	}
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

func matchEvent(e *models.Event, f models.EventFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Eligibility != "" && e.Eligibility != f.Eligibility {
		return false
	}
	if len(f.OrganizerIDs) > 0 && !containsID(f.OrganizerIDs, e.OrganizerID) {
		return false
	}
	if f.From != nil && e.StartDate.Before(*f.From) {
		return false
	}
	if f.To != nil && e.StartDate.After(*f.To) {
		return false
	}
	if len(f.Tags) > 0 && !anyTag(e.Tags, f.Tags) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(e.Name + " " + e.Description + " " + strings.Join(e.Tags, " "))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func containsStatus(list []models.EventStatus, s models.EventStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func (r *eventRepo) Update(_ context.Context, id uuid.UUID, fn func(e *models.Event) error) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.OrganizerID = cur.OrganizerID
	next.Views = cur.Views
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = r.db.now()
	r.db.events[id] = next
	return next.Clone(), nil
}

func (r *eventRepo) DeleteDraft(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != models.EventDraft || e.RegistrationCount > 0 || r.db.referenced(id) {
		return store.ErrConflict
	}
	delete(r.db.events, id)
	return nil
}

func (r *eventRepo) IncrementViews(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Views++
	return nil
}

func (r *eventRepo) CountByOrganizer(_ context.Context) (map[uuid.UUID]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, e := range r.db.events {
		counts[e.OrganizerID]++
	}
	return counts, nil
}

func (r *eventRepo) CountByStatus(_ context.Context) (map[models.EventStatus]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[models.EventStatus]int)
	for _, e := range r.db.events {
		counts[e.Status]++
	}
	return counts, nil
}
