package models

import (
	"time"

	"github.com/google/uuid"
)

// ResetStatus is the review status of an organizer password reset request.
type ResetStatus string

const (
	ResetPending  ResetStatus = "Pending"
	ResetApproved ResetStatus = "Approved"
	ResetRejected ResetStatus = "Rejected"
)

// MinResetReasonLength is the minimum length of a reset request reason.
const MinResetReasonLength = 10

// PasswordResetRequest is raised by an organizer and reviewed by an admin.
type PasswordResetRequest struct {
	ID           uuid.UUID   `json:"id"`
	OrganizerID  uuid.UUID   `json:"organizer_id"`
	Reason       string      `json:"reason"`
	Status       ResetStatus `json:"status"`
	AdminComment string      `json:"admin_comment,omitempty"`
	ReviewedBy   *uuid.UUID  `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time  `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
