package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the lifecycle status of a registration.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "Registered"
	RegistrationAttended   RegistrationStatus = "Attended"
	RegistrationCancelled  RegistrationStatus = "Cancelled"
	RegistrationRejected   RegistrationStatus = "Rejected"
	RegistrationPending    RegistrationStatus = "Pending"
)

// PaymentStatus records payment progress. Payments are never processed here.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
	PaymentRefunded  PaymentStatus = "Refunded"
)

// ApprovalStatus is the organizer's review of a payment proof.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
)

// ScanResult is the outcome recorded for one scan attempt.
type ScanResult string

const (
	ScanMarked         ScanResult = "marked"
	ScanAlreadyScanned ScanResult = "already_scanned"
	ScanWrongEvent     ScanResult = "wrong_event"
	ScanInvalidStatus  ScanResult = "invalid_status"
)

// Payment is the payment sub-record of a registration.
type Payment struct {
	Amount         int            `json:"amount"`
	Status         PaymentStatus  `json:"status"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	ProofKey       string         `json:"proof_key,omitempty"`
	ReviewedBy     *uuid.UUID     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
}

// MerchandiseSelection is what a participant ordered from a merchandise event.
type MerchandiseSelection struct {
	Size     string `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Quantity int    `json:"quantity"`
}

// ScanEntry is one attendance scan attempt.
type ScanEntry struct {
	ScannedAt time.Time  `json:"scanned_at"`
	ScannedBy uuid.UUID  `json:"scanned_by"`
	EventID   uuid.UUID  `json:"event_id"`
	Result    ScanResult `json:"result"`
}

// Attendance is the attendance sub-record of a registration.
type Attendance struct {
	Marked      bool        `json:"marked"`
	MarkedAt    *time.Time  `json:"marked_at,omitempty"`
	MarkedBy    *uuid.UUID  `json:"marked_by,omitempty"`
	ScanCount   int         `json:"scan_count"`
	ScanHistory []ScanEntry `json:"scan_history,omitempty"`
}

// Registration links one user to one event, optionally through a team.
type Registration struct {
	ID                 uuid.UUID             `json:"id"`
	EventID            uuid.UUID             `json:"event_id"`
	UserID             uuid.UUID             `json:"user_id"`
	TeamID             *uuid.UUID            `json:"team_id,omitempty"`
	Status             RegistrationStatus    `json:"status"`
	TicketID           string                `json:"ticket_id"`
	FormResponses      map[string]any        `json:"form_responses,omitempty"`
	Merchandise        *MerchandiseSelection `json:"merchandise,omitempty"`
	Payment            Payment               `json:"payment"`
	Attendance         Attendance            `json:"attendance"`
	RegisteredAt       time.Time             `json:"registered_at"`
	CancelledAt        *time.Time            `json:"cancelled_at,omitempty"`
	CancellationReason string                `json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// IsActive reports whether the registration still holds a seat.
func (r *Registration) IsActive() bool {
	return r.Status != RegistrationCancelled
}

// Clone returns a deep copy of the registration.
func (r *Registration) Clone() *Registration {
	c := *r
	if r.FormResponses != nil {
		c.FormResponses = make(map[string]any, len(r.FormResponses))
		for k, v := range r.FormResponses {
			c.FormResponses[k] = v
		}
	}
	if r.Merchandise != nil {
		m := *r.Merchandise
		c.Merchandise = &m
	}
	c.Attendance.ScanHistory = append([]ScanEntry(nil), r.Attendance.ScanHistory...)
	return &c
}

// RegistrationFilter narrows per-event registration listings.
type RegistrationFilter struct {
	Status   RegistrationStatus
	Attended *bool
	Search   string
}

// RegistrationDetail is a registration joined with its participant for organizer views.
type RegistrationDetail struct {
	Registration
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email"`
}

// PaymentPlan derives the payment sub-record for a new registration.
func PaymentPlan(amount int) Payment {
	if amount > 0 {
		return Payment{Amount: amount, Status: PaymentPending, ApprovalStatus: ApprovalPending}
	}
	return Payment{Amount: 0, Status: PaymentCompleted, ApprovalStatus: ApprovalApproved}
}
