package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes regular events from merchandise sales.
type EventType string

const (
	EventTypeNormal      EventType = "Normal"
	EventTypeMerchandise EventType = "Merchandise"
)

// EventStatus is the lifecycle status of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "Draft"
	EventPublished EventStatus = "Published"
	EventOngoing   EventStatus = "Ongoing"
	EventCompleted EventStatus = "Completed"
	EventClosed    EventStatus = "Closed"
	EventCancelled EventStatus = "Cancelled"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventPublished, EventOngoing, EventCompleted, EventClosed, EventCancelled:
		return true
	}
	return false
}

// Eligibility restricts who may register for an event.
type Eligibility string

const (
	EligibilityAll     Eligibility = "All"
	EligibilityIIIT    Eligibility = "IIIT Only"
	EligibilityNonIIIT Eligibility = "Non-IIIT Only"
)

// FieldType is the input type of a custom form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldDropdown FieldType = "dropdown"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldFile     FieldType = "file"
	FieldDate     FieldType = "date"
)

// FormField is one organizer-defined registration field.
type FormField struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Order    int       `json:"order"`
}

// CustomForm is the ordered registration form schema of an event.
type CustomForm struct {
	Fields   []FormField `json:"fields"`
	IsLocked bool        `json:"is_locked"`
}

// MerchVariant is a priced variant of a merchandise item.
type MerchVariant struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// Merchandise describes what a merchandise event sells.
type Merchandise struct {
	Sizes         []string       `json:"sizes,omitempty"`
	Colors        []string       `json:"colors,omitempty"`
	Variants      []MerchVariant `json:"variants,omitempty"`
	StockQuantity int            `json:"stock_quantity"`
	PurchaseLimit int            `json:"purchase_limit"`
}

// Event is owned by exactly one organizer.
type Event struct {
	ID                   uuid.UUID    `json:"id"`
	OrganizerID          uuid.UUID    `json:"organizer_id"`
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	Type                 EventType    `json:"type"`
	Status               EventStatus  `json:"status"`
	Eligibility          Eligibility  `json:"eligibility"`
	RegistrationDeadline time.Time    `json:"registration_deadline"`
	StartDate            time.Time    `json:"start_date"`
	EndDate              time.Time    `json:"end_date"`
	RegistrationLimit    *int         `json:"registration_limit,omitempty"`
	RegistrationCount    int          `json:"registration_count"`
	RegistrationFee      int          `json:"registration_fee"`
	Tags                 []string     `json:"tags,omitempty"`
	CustomForm           *CustomForm  `json:"custom_form,omitempty"`
	IsTeamEvent          bool         `json:"is_team_event"`
	MinTeamSize          int          `json:"min_team_size,omitempty"`
	MaxTeamSize          int          `json:"max_team_size,omitempty"`
	Merchandise          *Merchandise `json:"merchandise,omitempty"`
	Venue                string       `json:"venue,omitempty"`
	BannerImage          string       `json:"banner_image,omitempty"`
	Views                int          `json:"views"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// IsOpen reports whether the status accepts registrations.
func (e *Event) IsOpen() bool {
	return e.Status == EventPublished || e.Status == EventOngoing
}

// HasCustomForm reports whether the event defines at least one form field.
func (e *Event) HasCustomForm() bool {
	return e.CustomForm != nil && len(e.CustomForm.Fields) > 0
}

// FormLocked reports whether the custom form can no longer change.
func (e *Event) FormLocked() bool {
	return e.CustomForm != nil && e.CustomForm.IsLocked
}

// IsFull reports whether the registration limit has been reached.
func (e *Event) IsFull() bool {
	return e.RegistrationLimit != nil && e.RegistrationCount >= *e.RegistrationLimit
}

// HasRoomFor reports whether n more registrations fit under the limit.
func (e *Event) HasRoomFor(n int) bool {
	return e.RegistrationLimit == nil || e.RegistrationCount+n <= *e.RegistrationLimit
}

// DatesValid reports whether registrationDeadline <= startDate <= endDate.
func (e *Event) DatesValid() bool {
	return !e.RegistrationDeadline.After(e.StartDate) && !e.StartDate.After(e.EndDate)
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	if e.RegistrationLimit != nil {
		l := *e.RegistrationLimit
		c.RegistrationLimit = &l
	}
	c.Tags = append([]string(nil), e.Tags...)
	if e.CustomForm != nil {
		f := *e.CustomForm
		f.Fields = make([]FormField, len(e.CustomForm.Fields))
		for i, fld := range e.CustomForm.Fields {
			fld.Options = append([]string(nil), fld.Options...)
			f.Fields[i] = fld
		}
		c.CustomForm = &f
	}
	if e.Merchandise != nil {
		m := *e.Merchandise
		m.Sizes = append([]string(nil), e.Merchandise.Sizes...)
		m.Colors = append([]string(nil), e.Merchandise.Colors...)
		m.Variants = append([]MerchVariant(nil), e.Merchandise.Variants...)
		c.Merchandise = &m
	}
	return &c
}

// EventFilter narrows event listings.
type EventFilter struct {
	Search       string
	Type         EventType
	Eligibility  Eligibility
	Tags         []string
	OrganizerIDs []uuid.UUID
	Statuses     []EventStatus
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// ManagedBy reports whether the actor may manage the event: its organizer or an admin.
func (e *Event) ManagedBy(a Actor) bool {
	return a.IsAdmin() || e.OrganizerID == a.ID
}
