package events

import (
	"encoding/json"
	"time"

	"github.com/Pmjarvis/felicity-ems/internal/models"
)

// Field names an editable event attribute, using its JSON name.
type Field string

const (
	FieldName                 Field = "name"
	FieldDescription          Field = "description"
	FieldType                 Field = "type"
	FieldEligibility          Field = "eligibility"
	FieldRegistrationDeadline Field = "registration_deadline"
	FieldStartDate            Field = "start_date"
	FieldEndDate              Field = "end_date"
	FieldRegistrationLimit    Field = "registration_limit"
	FieldRegistrationFee      Field = "registration_fee"
	FieldTags                 Field = "tags"
	FieldCustomForm           Field = "custom_form"
	FieldIsTeamEvent          Field = "is_team_event"
	FieldMinTeamSize          Field = "min_team_size"
	FieldMaxTeamSize          Field = "max_team_size"
	FieldMerchandise          Field = "merchandise"
	FieldVenue                Field = "venue"
	FieldBannerImage          Field = "banner_image"
	FieldStatus               Field = "status"
)

var allFields = []Field{
	FieldName, FieldDescription, FieldType, FieldEligibility, FieldRegistrationDeadline, FieldStartDate,
	FieldEndDate, FieldRegistrationLimit, FieldRegistrationFee, FieldTags, FieldCustomForm, FieldIsTeamEvent,
	FieldMinTeamSize, FieldMaxTeamSize, FieldMerchandise, FieldVenue, FieldBannerImage, FieldStatus,
}

func fieldSet(fields ...Field) map[Field]bool {
	m := make(map[Field]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

// editable is the field whitelist per event status. Every status has an entry.
var editable = map[models.EventStatus]map[Field]bool{
	models.EventDraft:     fieldSet(allFields...),
	models.EventPublished: fieldSet(FieldDescription, FieldRegistrationDeadline, FieldRegistrationLimit, FieldStatus),
	models.EventOngoing:   fieldSet(FieldStatus),
	models.EventCompleted: fieldSet(FieldStatus),
	models.EventClosed:    fieldSet(FieldStatus),
	models.EventCancelled: fieldSet(FieldStatus),
}

// CanEdit reports whether field may change while the event has the given status.
func CanEdit(status models.EventStatus, field Field) bool {
	return editable[status][field]
}

// NullableInt distinguishes an absent JSON key from an explicit null.
type NullableInt struct {
	Set   bool
	Value *int
}

// UnmarshalJSON records that the key was present.
func (n *NullableInt) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Patch is a partial event update. Nil fields are absent from the request.
type Patch struct {
	Name                 *string             `json:"name"`
	Description          *string             `json:"description"`
	Type                 *models.EventType   `json:"type"`
	Eligibility          *models.Eligibility `json:"eligibility"`
	RegistrationDeadline *time.Time          `json:"registration_deadline"`
	StartDate            *time.Time          `json:"start_date"`
	EndDate              *time.Time          `json:"end_date"`
	RegistrationLimit    NullableInt         `json:"registration_limit"`
	RegistrationFee      *int                `json:"registration_fee"`
	Tags                 *[]string           `json:"tags"`
	CustomForm           *[]models.FormField `json:"custom_form"`
	IsTeamEvent          *bool               `json:"is_team_event"`
	MinTeamSize          *int                `json:"min_team_size"`
	MaxTeamSize          *int                `json:"max_team_size"`
	Merchandise          *models.Merchandise `json:"merchandise"`
	Venue                *string             `json:"venue"`
	BannerImage          *string             `json:"banner_image"`
	Status               *models.EventStatus `json:"status"`
}

// Apply copies the fields of p that are editable in e's current status onto e.
// Fields outside the whitelist are skipped and returned.
func (p *Patch) Apply(e *models.Event) (ignored []Field) {
	status := e.Status
	set := func(f Field, present bool, apply func()) {
		if !present {
			return
		}
		if !CanEdit(status, f) {
			ignored = append(ignored, f)
			return
		}
		apply()
	}
	set(FieldName, p.Name != nil, func() { e.Name = *p.Name })
	set(FieldDescription, p.Description != nil, func() { e.Description = *p.Description })
	set(FieldType, p.Type != nil, func() { e.Type = *p.Type })
	set(FieldEligibility, p.Eligibility != nil, func() { e.Eligibility = *p.Eligibility })
	set(FieldRegistrationDeadline, p.RegistrationDeadline != nil, func() { e.RegistrationDeadline = *p.RegistrationDeadline })
	set(FieldStartDate, p.StartDate != nil, func() { e.StartDate = *p.StartDate })
	set(FieldEndDate, p.EndDate != nil, func() { e.EndDate = *p.EndDate })
	set(FieldRegistrationLimit, p.RegistrationLimit.Set, func() { e.RegistrationLimit = p.RegistrationLimit.Value })
	set(FieldRegistrationFee, p.RegistrationFee != nil, func() { e.RegistrationFee = *p.RegistrationFee })
	set(FieldTags, p.Tags != nil, func() { e.Tags = *p.Tags })
	set(FieldCustomForm, p.CustomForm != nil, func() { e.CustomForm = newForm(*p.CustomForm) })
	set(FieldIsTeamEvent, p.IsTeamEvent != nil, func() { e.IsTeamEvent = *p.IsTeamEvent })
	set(FieldMinTeamSize, p.MinTeamSize != nil, func() { e.MinTeamSize = *p.MinTeamSize })
	set(FieldMaxTeamSize, p.MaxTeamSize != nil, func() { e.MaxTeamSize = *p.MaxTeamSize })
	set(FieldMerchandise, p.Merchandise != nil, func() { e.Merchandise = p.Merchandise })
	set(FieldVenue, p.Venue != nil, func() { e.Venue = *p.Venue })
	set(FieldBannerImage, p.BannerImage != nil, func() { e.BannerImage = *p.BannerImage })
	set(FieldStatus, p.Status != nil, func() { e.Status = *p.Status })
	return ignored
}
