package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

type teamRepo struct{ db *DB }

func (r *teamRepo) Create(_ context.Context, t *models.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.teams {
		if existing.InviteCode == t.InviteCode {
			return store.ErrDuplicateInviteCode
		}
	}
	if err := r.db.checkMemberships(t); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := r.db.now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.db.teams[t.ID] = t.Clone()
	return nil
}

// checkMemberships enforces one accepted membership per user per event.
func (db *DB) checkMemberships(t *models.Team) error {
	if t.Status == models.TeamCancelled {
		return nil
	}
	for _, id := range t.AcceptedMembers() {
		if db.activeMembership(t.EventID, id, t.ID) != nil {
			return store.ErrDuplicateMembership
		}
	}
	return nil
}

func (r *teamRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *teamRepo) GetByInviteCode(_ context.Context, code string) (*models.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.teams {
		if t.InviteCode == code {
			return t.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *teamRepo) FindActiveForUser(_ context.Context, eventID, userID uuid.UUID) (*models.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if t := r.db.activeMembership(eventID, userID, uuid.Nil); t != nil {
		return t.Clone(), nil
	}
	return nil, nil
}

func (r *teamRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*models.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.Team
	for _, t := range r.db.teams {
		if m := t.Member(userID); m != nil && m.Status != models.MemberRemoved {
			list = append(list, t.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *teamRepo) Update(_ context.Context, id uuid.UUID, fn func(t *models.Team, e *models.Event) error) (*models.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.teams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ev, ok := r.db.events[cur.EventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next, ev.Clone()); err != nil {
		return nil, err
	}
	if err := r.db.checkMemberships(next); err != nil {
		return nil, err
	}
	next.ID, next.EventID, next.InviteCode, next.CreatedAt = cur.ID, cur.EventID, cur.InviteCode, cur.CreatedAt
	next.UpdatedAt = r.db.now()
	r.db.teams[id] = next
	return next.Clone(), nil
}

func (r *teamRepo) Finalize(_ context.Context, id uuid.UUID, fn func(t *models.Team, e *models.Event) ([]*models.Registration, error)) (*models.Team, []*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.teams[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	ev, ok := r.db.events[cur.EventID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	next := cur.Clone()
	regs, err := fn(next, ev.Clone())
	if err != nil {
		return nil, nil, err
	}
	if cur.IsFinalized {
		return nil, nil, store.ErrConflict
	}
	if !ev.HasRoomFor(len(regs)) {
		return nil, nil, store.ErrConflict
	}

	// validate every insert before writing anything
	tickets := make(map[string]bool, len(regs))
	for _, reg := range regs {
		if r.db.activeRegistration(reg.EventID, reg.UserID) != nil {
			return nil, nil, store.ErrDuplicateRegistration
		}
		if tickets[reg.TicketID] || r.db.ticketTaken(reg.TicketID) {
			return nil, nil, store.ErrDuplicateTicket
		}
		tickets[reg.TicketID] = true
	}

	for _, reg := range regs {
		r.db.insertRegistration(reg)
	}
	ev.RegistrationCount += len(regs)
	if len(regs) > 0 && ev.HasCustomForm() {
		ev.CustomForm.IsLocked = true
	}
	ev.UpdatedAt = r.db.now()
	next.UpdatedAt = ev.UpdatedAt
	r.db.teams[id] = next

	out := make([]*models.Registration, len(regs))
	for i, reg := range regs {
		out[i] = reg.Clone()
	}
	return next.Clone(), out, nil
}
