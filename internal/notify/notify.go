// Package notify delivers best-effort outbound notifications (email and Discord webhooks).
// Callers hand a Notification to a Dispatcher once their write has committed; delivery
// runs on its own goroutine and failures are only logged.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind identifies what a notification is about and selects its template.
type Kind string

const (
	KindRegistrationConfirmed Kind = "registration_confirmed"
	KindTeamRegistered        Kind = "team_registered"
	KindTeamInvite            Kind = "team_invite"
	KindEventPublished        Kind = "event_published"
	KindOrganizerWelcome      Kind = "organizer_welcome"
	KindPasswordReset         Kind = "password_reset"
	KindPaymentReviewed       Kind = "payment_reviewed"
)

// Channel is the delivery medium.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelDiscord Channel = "discord"
)

// Notification is one outbound message. Recipient is an email address for the email
// channel and a webhook URL for the Discord channel.
type Notification struct {
	Kind           Kind              `json:"kind"`
	Channel        Channel           `json:"channel"`
	Recipient      string            `json:"recipient"`
	EventID        *uuid.UUID        `json:"event_id,omitempty"`
	RegistrationID *uuid.UUID        `json:"registration_id,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
}

// Email builds an email notification.
func Email(kind Kind, to string, data map[string]string) Notification {
	return Notification{Kind: kind, Channel: ChannelEmail, Recipient: to, Data: data}
}

// ForEvent sets the event and registration references used by the delivery log.
func (n Notification) ForEvent(eventID uuid.UUID, registrationID *uuid.UUID) Notification {
	n.EventID = &eventID
	n.RegistrationID = registrationID
	return n
}

// Sender hands a notification to a delivery mechanism.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n Notification) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// Dispatcher runs sends in the background so they never block or fail the caller.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A zero timeout defaults to 10 seconds.
func NewDispatcher(sender Sender, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout, logger: logger}
}

// Dispatch sends each notification on its own goroutine. Each send fails independently.
func (d *Dispatcher) Dispatch(ns ...Notification) {
	if d == nil || d.sender == nil {
		return
	}
	for _, n := range ns {
		if n.Recipient == "" {
			continue
		}
		d.wg.Add(1)
		go func(n Notification) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.sender.Send(ctx, n); err != nil {
				d.logger.Warn("notification send failed",
					zap.String("kind", string(n.Kind)),
					zap.String("channel", string(n.Channel)),
					zap.Error(err),
				)
			}
		}(n)
	}
}

// Wait blocks until every dispatched send has returned.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}
