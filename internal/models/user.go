package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the platform.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

// ParticipantType classifies participants for event eligibility.
type ParticipantType string

const (
	ParticipantIIIT    ParticipantType = "IIIT"
	ParticipantNonIIIT ParticipantType = "Non-IIIT"
)

// OrganizerCategory is the kind of club an organizer represents.
type OrganizerCategory string

const (
	CategoryTechnical  OrganizerCategory = "Technical"
	CategoryCultural   OrganizerCategory = "Cultural"
	CategorySports     OrganizerCategory = "Sports"
	CategoryLiterary   OrganizerCategory = "Literary"
	CategoryManagement OrganizerCategory = "Management"
	CategoryOther      OrganizerCategory = "Other"
)

// ValidCategory reports whether c is a known organizer category.
func ValidCategory(c OrganizerCategory) bool {
	switch c {
	case CategoryTechnical, CategoryCultural, CategorySports, CategoryLiterary, CategoryManagement, CategoryOther:
		return true
	}
	return false
}

// User represents a platform user. Participant and organizer fields are only
// meaningful for the matching role.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"-"`
	Role     Role      `json:"role"`

	FirstName       string          `json:"first_name,omitempty"`
	LastName        string          `json:"last_name,omitempty"`
	ParticipantType ParticipantType `json:"participant_type,omitempty"`
	CollegeName     string          `json:"college_name,omitempty"`
	ContactNumber   string          `json:"contact_number,omitempty"`
	Interests       []string        `json:"interests,omitempty"`
	FollowedClubs   []uuid.UUID     `json:"followed_clubs,omitempty"`

	OrganizerName  string            `json:"organizer_name,omitempty"`
	Category       OrganizerCategory `json:"category,omitempty"`
	Description    string            `json:"description,omitempty"`
	ContactEmail   string            `json:"contact_email,omitempty"`
	DiscordWebhook string            `json:"-"`

	IsActive   bool       `json:"is_active"`
	IsApproved bool       `json:"is_approved"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate enforces the role-specific required fields.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	switch u.Role {
	case RoleParticipant:
		if u.FirstName == "" || u.LastName == "" {
			return errors.New("first and last name are required for participants")
		}
		if u.ParticipantType != ParticipantIIIT && u.ParticipantType != ParticipantNonIIIT {
			return errors.New("participant type must be IIIT or Non-IIIT")
		}
	case RoleOrganizer:
		if u.OrganizerName == "" {
			return errors.New("organizer name is required")
		}
		if !ValidCategory(u.Category) {
			return errors.New("invalid organizer category")
		}
		if u.ContactEmail == "" {
			return errors.New("contact email is required for organizers")
		}
	case RoleAdmin:
	default:
		return errors.New("invalid role")
	}
	return nil
}

// DisplayName returns the name shown to other users.
func (u *User) DisplayName() string {
	if u.Role == RoleOrganizer && u.OrganizerName != "" {
		return u.OrganizerName
	}
	if n := strings.TrimSpace(u.FirstName + " " + u.LastName); n != "" {
		return n
	}
	return u.Email
}

// Follows reports whether the participant follows the given organizer.
func (u *User) Follows(organizerID uuid.UUID) bool {
	for _, id := range u.FollowedClubs {
		if id == organizerID {
			return true
		}
	}
	return false
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID              uuid.UUID         `json:"id"`
	Email           string            `json:"email"`
	Role            Role              `json:"role"`
	Name            string            `json:"name"`
	ParticipantType ParticipantType   `json:"participant_type,omitempty"`
	Category        OrganizerCategory `json:"category,omitempty"`
	Description     string            `json:"description,omitempty"`
	ContactEmail    string            `json:"contact_email,omitempty"`
	IsActive        bool              `json:"is_active"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:              u.ID,
		Email:           u.Email,
		Role:            u.Role,
		Name:            u.DisplayName(),
		ParticipantType: u.ParticipantType,
		Category:        u.Category,
		Description:     u.Description,
		ContactEmail:    u.ContactEmail,
		IsActive:        u.IsActive,
		CreatedAt:       u.CreatedAt,
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin reports whether the actor is an admin.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
