// Package events implements event creation, listing and the status-driven
// field editability rules of the event lifecycle.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// trendingLimit is how many events the trending listing returns.
const trendingLimit = 5

// Service implements the event operations.
type Service struct {
	store    *store.Store
	notifier *notify.Dispatcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an event service.
func NewService(st *store.Store, notifier *notify.Dispatcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, notifier: notifier, logger: logger, now: time.Now}
}

// CreateInput is the body for POST /events.
type CreateInput struct {
	Name                 string              `json:"name" binding:"required"`
	Description          string              `json:"description"`
	Type                 models.EventType    `json:"type" binding:"required"`
	Eligibility          models.Eligibility  `json:"eligibility"`
	RegistrationDeadline time.Time           `json:"registration_deadline" binding:"required"`
	StartDate            time.Time           `json:"start_date" binding:"required"`
	EndDate              time.Time           `json:"end_date" binding:"required"`
	RegistrationLimit    *int                `json:"registration_limit"`
	RegistrationFee      int                 `json:"registration_fee"`
	Tags                 []string            `json:"tags"`
	CustomForm           []models.FormField  `json:"custom_form"`
	IsTeamEvent          bool                `json:"is_team_event"`
	MinTeamSize          int                 `json:"min_team_size"`
	MaxTeamSize          int                 `json:"max_team_size"`
	Merchandise          *models.Merchandise `json:"merchandise"`
	Venue                string              `json:"venue"`
}

// Create stores a new Draft event owned by organizerID.
func (s *Service) Create(ctx context.Context, organizerID uuid.UUID, in CreateInput) (*models.Event, error) {
	e := &models.Event{
		OrganizerID:          organizerID,
		Name:                 strings.TrimSpace(in.Name),
		Description:          in.Description,
		Type:                 in.Type,
		Status:               models.EventDraft,
		Eligibility:          in.Eligibility,
		RegistrationDeadline: in.RegistrationDeadline,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		RegistrationLimit:    in.RegistrationLimit,
		RegistrationFee:      in.RegistrationFee,
		Tags:                 normalizeTags(in.Tags),
		CustomForm:           newForm(in.CustomForm),
		IsTeamEvent:          in.IsTeamEvent,
		MinTeamSize:          in.MinTeamSize,
		MaxTeamSize:          in.MaxTeamSize,
		Merchandise:          in.Merchandise,
		Venue:                in.Venue,
	}
	if e.Eligibility == "" {
		e.Eligibility = models.EligibilityAll
	}
	if !e.IsTeamEvent {
		e.MinTeamSize, e.MaxTeamSize = 0, 0
	}
	if e.Type != models.EventTypeMerchandise {
		e.Merchandise = nil
	} else if e.Merchandise != nil && e.Merchandise.PurchaseLimit == 0 {
		e.Merchandise.PurchaseLimit = 1
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	if err := s.store.Events.Create(ctx, e); err != nil {
		return nil, apperr.Internal("create event", err)
	}
	s.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.String("organizer_id", organizerID.String()))
	return e, nil
}

// validate checks the invariants every stored event must satisfy.
func validate(e *models.Event) error {
	if e.Name == "" {
		return apperr.ErrInvalidInput.With("event name is required")
	}
	if e.Type != models.EventTypeNormal && e.Type != models.EventTypeMerchandise {
		return apperr.ErrInvalidInput.With("type must be Normal or Merchandise")
	}
	switch e.Eligibility {
	case models.EligibilityAll, models.EligibilityIIIT, models.EligibilityNonIIIT:
	default:
		return apperr.ErrInvalidInput.With("invalid eligibility")
	}
	if !e.Status.Valid() {
		return apperr.ErrInvalidInput.With("invalid status")
	}
	if !e.DatesValid() {
		return apperr.ErrInvalidDates
	}
	if e.IsTeamEvent && (e.MinTeamSize < 1 || e.MinTeamSize > e.MaxTeamSize) {
		return apperr.ErrInvalidTeamSize
	}
	if e.RegistrationFee < 0 {
		return apperr.ErrInvalidInput.With("registration fee cannot be negative")
	}
	if e.RegistrationLimit != nil {
		if *e.RegistrationLimit < 1 {
			return apperr.ErrInvalidInput.With("registration limit must be positive")
		}
		if *e.RegistrationLimit < e.RegistrationCount {
			return apperr.ErrLimitBelowCount
		}
	}
	if e.Type == models.EventTypeMerchandise {
		m := e.Merchandise
		if m == nil {
			return apperr.ErrInvalidInput.With("merchandise events need merchandise details")
		}
		if m.StockQuantity < 0 || m.PurchaseLimit < 1 {
			return apperr.ErrInvalidInput.With("stock cannot be negative and purchase limit must be positive")
		}
		for _, v := range m.Variants {
			if v.Name == "" || v.Price < 0 {
				return apperr.ErrInvalidInput.With("invalid merchandise variant")
			}
		}
	}
	if e.CustomForm != nil {
		seen := make(map[string]bool, len(e.CustomForm.Fields))
		for _, f := range e.CustomForm.Fields {
			if !validFieldType(f.Type) {
				return apperr.ErrInvalidInput.With(fmt.Sprintf("invalid field type %q", f.Type))
			}
			if seen[f.Name] {
				return apperr.ErrInvalidInput.With(fmt.Sprintf("duplicate form field %q", f.Name))
			}
			seen[f.Name] = true
		}
	}
	return nil
}

func validFieldType(t models.FieldType) bool {
	switch t {
	case models.FieldText, models.FieldTextarea, models.FieldEmail, models.FieldNumber, models.FieldDropdown,
		models.FieldCheckbox, models.FieldRadio, models.FieldFile, models.FieldDate:
		return true
	}
	return false
}

// newForm normalizes form fields: missing names derive from labels, order follows the list.
func newForm(fields []models.FormField) *models.CustomForm {
	if len(fields) == 0 {
		return nil
	}
	out := make([]models.FormField, len(fields))
	for i, f := range fields {
		if f.Type == "" {
			f.Type = models.FieldText
		}
		if f.Label == "" {
			f.Label = "Field " + strconv.Itoa(i+1)
		}
		if f.Name == "" {
			f.Name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(f.Label)), " ", "_")
		}
		f.Order = i
		out[i] = f
	}
	return &models.CustomForm{Fields: out}
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Get returns an event and counts the view. Drafts are only visible to their organizer and admins.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewer *models.Actor) (*models.Event, error) {
	e, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, apperr.Internal("load event", err)
	}
	if e.Status == models.EventDraft && (viewer == nil || !e.ManagedBy(*viewer)) {
		return nil, apperr.ErrEventNotFound
	}
	if err := s.store.Events.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("increment views failed", zap.String("event_id", id.String()), zap.Error(err))
	} else {
		e.Views++
	}
	return e, nil
}

// ListQuery filters the public event listing.
type ListQuery struct {
	Search       string
	Type         models.EventType
	Eligibility  models.Eligibility
	Tags         []string
	OrganizerID  *uuid.UUID
	From         *time.Time
	To           *time.Time
	FollowedOnly bool
	Trending     bool
	Limit        int
	Offset       int
}

// ListPublished returns events open to participants. For a signed-in participant the
// result is ordered by relevance: followed clubs first, then events matching interests.
func (s *Service) ListPublished(ctx context.Context, q ListQuery, viewer *models.Actor) ([]*models.Event, error) {
	f := models.EventFilter{
		Search:      q.Search,
		Type:        q.Type,
		Eligibility: q.Eligibility,
		Tags:        normalizeTags(q.Tags),
		Statuses:    []models.EventStatus{models.EventPublished, models.EventOngoing},
		From:        q.From,
		To:          q.To,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if q.OrganizerID != nil {
		f.OrganizerIDs = []uuid.UUID{*q.OrganizerID}
	}

	var user *models.User
	if viewer != nil && viewer.Role == models.RoleParticipant {
		u, err := s.store.Users.GetByID(ctx, viewer.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Internal("load user", err)
		}
		user = u
	}
	if q.FollowedOnly && user != nil && len(user.FollowedClubs) > 0 && q.OrganizerID == nil {
		f.OrganizerIDs = user.FollowedClubs
	}

	list, err := s.store.Events.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list events", err)
	}
	if q.Trending {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Views > list[j].Views })
		if len(list) > trendingLimit {
			list = list[:trendingLimit]
		}
		return list, nil
	}
	if user != nil {
		sortByRelevance(list, user)
	}
	return list, nil
}

// sortByRelevance orders events by score: +2 for a followed club, +1 for a tag matching an interest.
func sortByRelevance(list []*models.Event, u *models.User) {
	interests := make(map[string]bool, len(u.Interests))
	for _, i := range u.Interests {
		interests[strings.ToLower(i)] = true
	}
	score := func(e *models.Event) int {
		n := 0
		if u.Follows(e.OrganizerID) {
			n += 2
		}
		for _, t := range e.Tags {
			if interests[strings.ToLower(t)] {
				n++
				break
			}
		}
		return n
	}
	sort.SliceStable(list, func(i, j int) bool { return score(list[i]) > score(list[j]) })
}

// ListMine returns the organizer's events, optionally filtered by status.
func (s *Service) ListMine(ctx context.Context, organizerID uuid.UUID, status models.EventStatus) ([]*models.Event, error) {
	f := models.EventFilter{OrganizerIDs: []uuid.UUID{organizerID}}
	if status != "" {
		f.Statuses = []models.EventStatus{status}
	}
	list, err := s.store.Events.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list events", err)
	}
	return list, nil
}

// Update applies a patch under the editability rules of the event's current status.
// Fields not editable in that status are ignored and returned; a custom form change on a
// locked form rejects the whole update.
func (s *Service) Update(ctx context.Context, id uuid.UUID, actor models.Actor, p Patch) (*models.Event, []Field, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, nil, apperr.ErrInvalidInput.With("invalid status")
	}
	var previous models.EventStatus
	var ignored []Field
	e, err := s.store.Events.Update(ctx, id, func(e *models.Event) error {
		if !e.ManagedBy(actor) {
			return apperr.ErrNotEventOwner
		}
		if p.CustomForm != nil && e.FormLocked() {
			return apperr.ErrFormLocked
		}
		previous = e.Status
		ignored = p.Apply(e)
		if p.Tags != nil && CanEdit(previous, FieldTags) {
			e.Tags = normalizeTags(e.Tags)
		}
		if !e.IsTeamEvent {
			e.MinTeamSize, e.MaxTeamSize = 0, 0
		}
		return validate(e)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.ErrEventNotFound
		}
		return nil, nil, apperr.Wrap(err, "update event")
	}
	if len(ignored) > 0 {
		s.logger.Debug("ignored non-editable fields", zap.String("event_id", id.String()), zap.Any("fields", ignored))
	}
	if previous == models.EventDraft && e.Status == models.EventPublished {
		s.announce(ctx, e)
	}
	return e, ignored, nil
}

// announce posts a published event to the organizer's Discord webhook, if one is configured.
func (s *Service) announce(ctx context.Context, e *models.Event) {
	org, err := s.store.Users.GetByID(ctx, e.OrganizerID)
	if err != nil {
		s.logger.Warn("load organizer for announcement", zap.String("event_id", e.ID.String()), zap.Error(err))
		return
	}
	if org.DiscordWebhook == "" {
		return
	}
	description := e.Description
	if len(description) > 200 {
		description = description[:200]
	}
	n := notify.Notification{
		Kind:      notify.KindEventPublished,
		Channel:   notify.ChannelDiscord,
		Recipient: org.DiscordWebhook,
		Data: map[string]string{
			"event_name":     e.Name,
			"organizer_name": org.DisplayName(),
			"description":    description,
			"deadline":       e.RegistrationDeadline.Format("02 Jan 2006 15:04 MST"),
		},
	}
	s.notifier.Dispatch(n.ForEvent(e.ID, nil))
}

// Delete removes an event that is still a draft and has never taken a registration or team.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	e, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrEventNotFound
		}
		return apperr.Internal("load event", err)
	}
	if !e.ManagedBy(actor) {
		return apperr.ErrNotEventOwner
	}
	if e.Status != models.EventDraft {
		return apperr.ErrCannotDeletePublished
	}
	switch err := s.store.Events.DeleteDraft(ctx, id); {
	case err == nil:
		s.logger.Info("event deleted", zap.String("event_id", id.String()))
		return nil
	case errors.Is(err, store.ErrConflict):
		return apperr.ErrCannotDeletePublished
	case errors.Is(err, store.ErrNotFound):
		return apperr.ErrEventNotFound
	default:
		return apperr.Internal("delete event", err)
	}
}

// SetBanner records a new banner URL. Banners follow the same editability rules as other fields.
func (s *Service) SetBanner(ctx context.Context, id uuid.UUID, actor models.Actor, url string) (*models.Event, error) {
	e, ignored, err := s.Update(ctx, id, actor, Patch{BannerImage: &url})
	if err != nil {
		return nil, err
	}
	if len(ignored) > 0 {
		return nil, apperr.ErrFieldNotEditable.With("banner can only change while the event is a draft")
	}
	return e, nil
}

// Authorize loads the event and checks that actor manages it.
func (s *Service) Authorize(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Event, error) {
	e, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, apperr.Internal("load event", err)
	}
	if !e.ManagedBy(actor) {
		return nil, apperr.ErrNotEventOwner
	}
	return e, nil
}

// Notifications returns the delivery log of the notifications sent about an event.
func (s *Service) Notifications(ctx context.Context, id uuid.UUID, actor models.Actor) ([]*models.NotificationLog, error) {
	if _, err := s.Authorize(ctx, id, actor); err != nil {
		return nil, err
	}
	logs, err := s.store.NotificationLogs.ListByEvent(ctx, id)
	if err != nil {
		return nil, apperr.Internal("list notification logs", err)
	}
	if logs == nil {
		logs = []*models.NotificationLog{}
	}
	return logs, nil
}
