// Package registrations implements individual event registration, cancellation,
// ticket lookup and payment proof review.
package registrations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/eligibility"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/pkg/storage"
	"github.com/Pmjarvis/felicity-ems/pkg/utils"
)

const (
	// maxTicketAttempts bounds ticket id re-rolls on collision.
	maxTicketAttempts = 5
	// defaultCancelReason is recorded when the participant gives none.
	defaultCancelReason = "Cancelled by participant"
)

// ProofStore holds payment proof uploads.
type ProofStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Service implements the registration operations.
type Service struct {
	store        *store.Store
	proofs       ProofStore
	notifier     *notify.Dispatcher
	ticketPrefix string
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a registration service. proofs may be nil when S3 is not configured.
func NewService(st *store.Store, proofs ProofStore, notifier *notify.Dispatcher, ticketPrefix string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, proofs: proofs, notifier: notifier, ticketPrefix: ticketPrefix, logger: logger, now: time.Now}
}

// RegisterInput is the body for POST /events/:id/register.
type RegisterInput struct {
	FormResponses map[string]any               `json:"form_responses"`
	Merchandise   *models.MerchandiseSelection `json:"merchandise"`
}

// Register creates an individual registration. Capacity, stock and the form lock are
// applied atomically with the insert; a storage conflict is retried once.
func (s *Service) Register(ctx context.Context, eventID, userID uuid.UUID, in RegisterInput) (*models.Registration, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, apperr.Internal("load user", err)
	}

	var reg *models.Registration
	var ev *models.Event
	for attempt := 0; ; attempt++ {
		reg, ev, err = s.register(ctx, eventID, user, in)
		if errors.Is(err, store.ErrConflict) && attempt == 0 {
			s.logger.Debug("registration conflict, retrying", zap.String("event_id", eventID.String()))
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.ErrStorageConflict
		}
		return nil, err
	}

	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("ticket_id", reg.TicketID),
	)
	s.notifier.Dispatch(confirmation(user, ev, reg))
	return reg, nil
}

func confirmation(user *models.User, ev *models.Event, reg *models.Registration) notify.Notification {
	data := map[string]string{
		"name":       user.DisplayName(),
		"event_name": ev.Name,
		"ticket_id":  reg.TicketID,
		"start_date": ev.StartDate.Format("02 Jan 2006 15:04 MST"),
		"venue":      ev.Venue,
	}
	if reg.Payment.Amount > 0 {
		data["amount"] = strconv.Itoa(reg.Payment.Amount)
	}
	return notify.Email(notify.KindRegistrationConfirmed, user.Email, data).ForEvent(ev.ID, &reg.ID)
}

// ResendConfirmation dispatches the confirmation email of an active registration again.
// The holder, the event organizer or an admin may ask for it.
func (s *Service) ResendConfirmation(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Registration, error) {
	reg, err := s.store.Registrations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRegistrationNotFound
		}
		return nil, apperr.Internal("load registration", err)
	}
	ev, err := s.store.Events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, apperr.Internal("load event", err)
	}
	if reg.UserID != actor.ID && !ev.ManagedBy(actor) {
		return nil, apperr.ErrNotRegistrationOwner
	}
	if !reg.IsActive() {
		return nil, apperr.ErrInvalidInput.With("registration is cancelled")
	}
	user, err := s.store.Users.GetByID(ctx, reg.UserID)
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	s.notifier.Dispatch(confirmation(user, ev, reg))
	s.logger.Info("confirmation resent", zap.String("registration_id", id.String()), zap.String("by", actor.ID.String()))
	return reg, nil
}

// register runs one attempt. It returns store.ErrConflict when the guarded write lost a race.
func (s *Service) register(ctx context.Context, eventID uuid.UUID, user *models.User, in RegisterInput) (*models.Registration, *models.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.ErrEventNotFound
		}
		return nil, nil, apperr.Internal("load event", err)
	}
	existing, err := s.store.Registrations.FindActive(ctx, eventID, user.ID)
	if err != nil {
		return nil, nil, apperr.Internal("load registration", err)
	}
	now := s.now()
	if d := eligibility.CanRegister(ev, user, now, existing != nil); !d.OK {
		return nil, nil, d.Err()
	}
	if err := checkForm(ev, in.FormResponses); err != nil {
		return nil, nil, err
	}
	sel, price, err := checkSelection(ev, in.Merchandise)
	if err != nil {
		return nil, nil, err
	}

	reg := &models.Registration{
		EventID:       eventID,
		UserID:        user.ID,
		Status:        models.RegistrationRegistered,
		FormResponses: in.FormResponses,
		Merchandise:   sel,
		Payment:       models.PaymentPlan(ev.RegistrationFee + price),
		RegisteredAt:  now,
	}
	res := store.Reservation{Check: func(cur *models.Event) error {
		if d := eligibility.CanRegister(cur, user, now, false); !d.OK {
			return d.Err()
		}
		if sel != nil && (cur.Merchandise == nil || cur.Merchandise.StockQuantity < sel.Quantity) {
			return apperr.ErrInsufficientStock
		}
		return nil
	}}
	if sel != nil {
		res.Quantity = sel.Quantity
	}

	for i := 0; i < maxTicketAttempts; i++ {
		reg.TicketID, err = utils.TicketID(s.ticketPrefix, now)
		if err != nil {
			return nil, nil, apperr.Internal("generate ticket id", err)
		}
		updated, err := s.store.Registrations.CreateIndividual(ctx, reg, res)
		switch {
		case err == nil:
			return reg, updated, nil
		case errors.Is(err, store.ErrDuplicateTicket):
			reg.ID = uuid.Nil
			continue
		case errors.Is(err, store.ErrDuplicateRegistration):
			return nil, nil, apperr.ErrAlreadyRegistered
		case errors.Is(err, store.ErrConflict):
			return nil, nil, store.ErrConflict
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, apperr.ErrEventNotFound
		default:
			return nil, nil, apperr.Wrap(err, "create registration")
		}
	}
	return nil, nil, apperr.Internal("generate ticket id", errors.New("too many ticket id collisions"))
}

// checkForm verifies that every required custom form field has a non-empty response.
func checkForm(ev *models.Event, responses map[string]any) error {
	if !ev.HasCustomForm() {
		return nil
	}
	for _, f := range ev.CustomForm.Fields {
		if !f.Required {
			continue
		}
		if isBlank(responses[f.Name]) {
			return apperr.ErrMissingFormField.With(fmt.Sprintf("%s is required", f.Label))
		}
	}
	return nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case bool:
		return !t
	}
	return false
}

// checkSelection validates a merchandise order and returns it with its variant price.
// Non-merchandise events ignore any selection.
func checkSelection(ev *models.Event, sel *models.MerchandiseSelection) (*models.MerchandiseSelection, int, error) {
	if ev.Type != models.EventTypeMerchandise || ev.Merchandise == nil {
		return nil, 0, nil
	}
	m := ev.Merchandise
	out := models.MerchandiseSelection{Quantity: 1}
	if sel != nil {
		out = *sel
		if out.Quantity == 0 {
			out.Quantity = 1
		}
	}
	if out.Quantity < 0 {
		return nil, 0, apperr.ErrInvalidSelection.With("quantity must be positive")
	}
	if !oneOf(m.Sizes, out.Size) {
		return nil, 0, apperr.ErrInvalidSelection.With("unknown size " + out.Size)
	}
	if !oneOf(m.Colors, out.Color) {
		return nil, 0, apperr.ErrInvalidSelection.With("unknown color " + out.Color)
	}
	price := 0
	if len(m.Variants) > 0 {
		found := false
		for _, v := range m.Variants {
			if v.Name == out.Variant {
				price, found = v.Price*out.Quantity, true
				break
			}
		}
		if !found {
			return nil, 0, apperr.ErrInvalidSelection.With("unknown variant " + out.Variant)
		}
	}
	if m.StockQuantity < out.Quantity {
		return nil, 0, apperr.ErrInsufficientStock
	}
	if m.PurchaseLimit > 0 && out.Quantity > m.PurchaseLimit {
		return nil, 0, apperr.ErrPurchaseLimitExceeded.With(fmt.Sprintf("maximum purchase limit is %d per participant", m.PurchaseLimit))
	}
	return &out, price, nil
}

// oneOf reports whether v is among options. An empty option list accepts an empty value only.
func oneOf(options []string, v string) bool {
	if len(options) == 0 {
		return v == ""
	}
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// Cancel cancels the caller's registration and releases its seat and stock.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID, reason string) (*models.Registration, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultCancelReason
	}
	reg, err := s.store.Registrations.Cancel(ctx, id, func(r *models.Registration) error {
		if r.UserID != userID {
			return apperr.ErrNotRegistrationOwner
		}
		if r.Status != models.RegistrationRegistered && r.Status != models.RegistrationPending {
			return apperr.ErrCannotCancel
		}
		return nil
	}, reason, s.now())
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.ErrRegistrationNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, apperr.ErrCannotCancel
	default:
		return nil, apperr.Wrap(err, "cancel registration")
	}
	s.logger.Info("registration cancelled", zap.String("registration_id", id.String()))
	return reg, nil
}

// ListMine returns the caller's registrations, newest first. Optional status filter.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, status models.RegistrationStatus) ([]*models.Registration, error) {
	list, err := s.store.Registrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list registrations", err)
	}
	if status == "" {
		return list, nil
	}
	out := list[:0]
	for _, r := range list {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListForEvent returns the event's registrations for its organizer or an admin.
func (s *Service) ListForEvent(ctx context.Context, eventID uuid.UUID, actor models.Actor, f models.RegistrationFilter) (*models.Event, []*models.RegistrationDetail, error) {
	ev, err := s.managedEvent(ctx, eventID, actor)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.store.Registrations.ListByEvent(ctx, eventID, f)
	if err != nil {
		return nil, nil, apperr.Internal("list registrations", err)
	}
	return ev, list, nil
}

func (s *Service) managedEvent(ctx context.Context, eventID uuid.UUID, actor models.Actor) (*models.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, apperr.Internal("load event", err)
	}
	if !ev.ManagedBy(actor) {
		return nil, apperr.ErrNotEventOwner
	}
	return ev, nil
}

// Ticket is a registration with the event it admits to.
type Ticket struct {
	Registration *models.Registration `json:"registration"`
	Event        *models.Event        `json:"event"`
}

// GetByTicket returns a ticket to its holder, the event organizer or an admin.
func (s *Service) GetByTicket(ctx context.Context, ticketID string, actor models.Actor) (*Ticket, error) {
	reg, err := s.store.Registrations.GetByTicketID(ctx, utils.NormalizeTicketID(ticketID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrTicketNotFound
		}
		return nil, apperr.Internal("load ticket", err)
	}
	ev, err := s.store.Events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, apperr.Internal("load event", err)
	}
	if reg.UserID != actor.ID && !ev.ManagedBy(actor) {
		return nil, apperr.ErrNotRegistrationOwner
	}
	return &Ticket{Registration: reg, Event: ev}, nil
}

func (s *Service) owned(ctx context.Context, id, userID uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.Registrations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRegistrationNotFound
		}
		return nil, apperr.Internal("load registration", err)
	}
	if reg.UserID != userID {
		return nil, apperr.ErrNotRegistrationOwner
	}
	return reg, nil
}

// ProofUpload is a presigned upload target for a payment proof.
type ProofUpload struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// PaymentProofUploadURL returns a presigned PUT URL for the caller's payment proof.
func (s *Service) PaymentProofUploadURL(ctx context.Context, id, userID uuid.UUID, contentType string, expires time.Duration) (*ProofUpload, error) {
	if s.proofs == nil {
		return nil, apperr.Internal("payment proofs", errors.New("S3 not configured"))
	}
	reg, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if reg.Payment.Amount == 0 || !reg.IsActive() {
		return nil, apperr.ErrNoPaymentDue
	}
	ext, ok := storage.ExtensionFor(storage.ProofTypes, contentType)
	if !ok {
		return nil, apperr.ErrInvalidInput.With("invalid file type: only jpg, png, webp and pdf allowed")
	}
	key := storage.PaymentProofKey(reg.EventID.String(), reg.ID.String(), ext)
	url, err := s.proofs.PresignUpload(ctx, key, contentType)
	if err != nil {
		return nil, apperr.Internal("presign upload", err)
	}
	return &ProofUpload{UploadURL: url, Key: key, ExpiresIn: int(expires.Seconds())}, nil
}

// AttachPaymentProof records an uploaded proof and puts the payment back into review.
func (s *Service) AttachPaymentProof(ctx context.Context, id, userID uuid.UUID, key, transactionID string) (*models.Registration, error) {
	if s.proofs == nil {
		return nil, apperr.Internal("payment proofs", errors.New("S3 not configured"))
	}
	reg, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !storage.IsPaymentProofKey(key, reg.EventID.String(), reg.ID.String()) {
		return nil, apperr.ErrInvalidInput.With("key does not belong to this registration")
	}
	ok, err := s.proofs.Exists(ctx, key)
	if err != nil {
		return nil, apperr.Internal("check payment proof", err)
	}
	if !ok {
		return nil, apperr.ErrInvalidInput.With("payment proof has not been uploaded")
	}
	reg, err = s.store.Registrations.UpdatePayment(ctx, id, func(r *models.Registration) error {
		if r.Payment.Amount == 0 || !r.IsActive() {
			return apperr.ErrNoPaymentDue
		}
		if r.Payment.ApprovalStatus == models.ApprovalApproved {
			return apperr.ErrNoPaymentDue.With("payment already approved")
		}
		r.Payment.ProofKey = key
		r.Payment.TransactionID = strings.TrimSpace(transactionID)
		r.Payment.Status = models.PaymentPending
		r.Payment.ApprovalStatus = models.ApprovalPending
		r.Payment.ReviewedBy, r.Payment.ReviewedAt = nil, nil
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRegistrationNotFound
		}
		return nil, apperr.Wrap(err, "attach payment proof")
	}
	return reg, nil
}

// PaymentProofURL returns a presigned download URL of the proof for the organizer or the holder.
func (s *Service) PaymentProofURL(ctx context.Context, id uuid.UUID, actor models.Actor) (string, error) {
	if s.proofs == nil {
		return "", apperr.Internal("payment proofs", errors.New("S3 not configured"))
	}
	reg, err := s.store.Registrations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.ErrRegistrationNotFound
		}
		return "", apperr.Internal("load registration", err)
	}
	if reg.UserID != actor.ID {
		if _, err := s.managedEvent(ctx, reg.EventID, actor); err != nil {
			return "", err
		}
	}
	if reg.Payment.ProofKey == "" {
		return "", apperr.ErrNoPaymentDue.With("no payment proof uploaded")
	}
	url, err := s.proofs.PresignDownload(ctx, reg.Payment.ProofKey)
	if err != nil {
		return "", apperr.Internal("presign download", err)
	}
	return url, nil
}

// ReviewPayment approves or rejects a registration's payment. Only the event organizer or an admin may review.
func (s *Service) ReviewPayment(ctx context.Context, id uuid.UUID, actor models.Actor, approve bool) (*models.Registration, error) {
	current, err := s.store.Registrations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRegistrationNotFound
		}
		return nil, apperr.Internal("load registration", err)
	}
	ev, err := s.managedEvent(ctx, current.EventID, actor)
	if err != nil {
		return nil, err
	}
	at := s.now()
	reg, err := s.store.Registrations.UpdatePayment(ctx, id, func(r *models.Registration) error {
		if r.Payment.Amount == 0 || !r.IsActive() {
			return apperr.ErrNoPaymentDue
		}
		if approve {
			r.Payment.Status, r.Payment.ApprovalStatus = models.PaymentCompleted, models.ApprovalApproved
		} else {
			r.Payment.Status, r.Payment.ApprovalStatus = models.PaymentFailed, models.ApprovalRejected
		}
		r.Payment.ReviewedBy = &actor.ID
		r.Payment.ReviewedAt = &at
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrRegistrationNotFound
		}
		return nil, apperr.Wrap(err, "review payment")
	}
	s.logger.Info("payment reviewed",
		zap.String("registration_id", id.String()),
		zap.String("approval_status", string(reg.Payment.ApprovalStatus)),
	)

	if u, err := s.store.Users.GetByID(ctx, reg.UserID); err == nil {
		n := notify.Email(notify.KindPaymentReviewed, u.Email, map[string]string{
			"name":       u.DisplayName(),
			"event_name": ev.Name,
			"status":     strings.ToLower(string(reg.Payment.ApprovalStatus)),
			"ticket_id":  reg.TicketID,
		})
		s.notifier.Dispatch(n.ForEvent(ev.ID, &reg.ID))
	}
	return reg, nil
}
