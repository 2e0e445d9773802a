package models

import (
	"time"

	"github.com/google/uuid"
)

// MemberStatus is the status of one team membership.
type MemberStatus string

const (
	MemberInvited  MemberStatus = "Invited"
	MemberAccepted MemberStatus = "Accepted"
	MemberDeclined MemberStatus = "Declined"
	MemberRemoved  MemberStatus = "Removed"
)

// TeamStatus is the lifecycle status of a team.
type TeamStatus string

const (
	TeamForming    TeamStatus = "Forming"
	TeamComplete   TeamStatus = "Complete"
	TeamRegistered TeamStatus = "Registered"
	TeamCancelled  TeamStatus = "Cancelled"
)

// TeamMember is one entry of a team's ordered member list.
type TeamMember struct {
	UserID      uuid.UUID    `json:"user_id"`
	Status      MemberStatus `json:"status"`
	JoinedAt    time.Time    `json:"joined_at"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
}

// Team groups participants registering together for a team event.
// The leader is always the first member, with status Accepted.
type Team struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	EventID      uuid.UUID    `json:"event_id"`
	LeaderID     uuid.UUID    `json:"leader_id"`
	Members      []TeamMember `json:"members"`
	InviteCode   string       `json:"invite_code"`
	IsFinalized  bool         `json:"is_finalized"`
	Status       TeamStatus   `json:"status"`
	RequiredSize int          `json:"required_size"`
	CurrentSize  int          `json:"current_size"`
	RegisteredAt *time.Time   `json:"registered_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Member returns the member entry for userID, or nil.
func (t *Team) Member(userID uuid.UUID) *TeamMember {
	for i := range t.Members {
		if t.Members[i].UserID == userID {
			return &t.Members[i]
		}
	}
	return nil
}

// IsActiveMember reports whether userID is an accepted member (leader included).
func (t *Team) IsActiveMember(userID uuid.UUID) bool {
	m := t.Member(userID)
	return m != nil && m.Status == MemberAccepted
}

// AcceptedMembers returns accepted member IDs in list order, leader first.
func (t *Team) AcceptedMembers() []uuid.UUID {
	var ids []uuid.UUID
	for _, m := range t.Members {
		if m.Status == MemberAccepted {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// Recount recomputes CurrentSize and the Forming/Complete status from the member list.
// Finalized and cancelled teams keep their status.
func (t *Team) Recount() {
	t.CurrentSize = len(t.AcceptedMembers())
	if t.IsFinalized || t.Status == TeamCancelled {
		return
	}
	if t.CurrentSize >= t.RequiredSize {
		t.Status = TeamComplete
	} else {
		t.Status = TeamForming
	}
}

// Clone returns a deep copy of the team.
func (t *Team) Clone() *Team {
	c := *t
	c.Members = make([]TeamMember, len(t.Members))
	copy(c.Members, t.Members)
	return &c
}
