package notify

import (
	"context"
	"fmt"
)

// EmailSender is satisfied by *Mailer.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// WebhookPoster is satisfied by *Discord.
type WebhookPoster interface {
	Post(ctx context.Context, webhookURL, title, content string) error
}

// Deliverer renders a notification and pushes it through the channel it names.
type Deliverer struct {
	mail    EmailSender
	webhook WebhookPoster
}

// NewDeliverer creates a deliverer. Either transport may be nil, in which case
// notifications for that channel fail.
func NewDeliverer(mail EmailSender, webhook WebhookPoster) *Deliverer {
	return &Deliverer{mail: mail, webhook: webhook}
}

// Deliver renders and sends n. It returns the rendered subject for the delivery log.
func (d *Deliverer) Deliver(ctx context.Context, n Notification) (string, error) {
	subject, body, err := Render(n)
	if err != nil {
		return "", err
	}
	switch n.Channel {
	case ChannelEmail:
		if d.mail == nil {
			return subject, fmt.Errorf("email transport not configured")
		}
		return subject, d.mail.Send(ctx, n.Recipient, subject, body)
	case ChannelDiscord:
		if d.webhook == nil {
			return subject, fmt.Errorf("webhook transport not configured")
		}
		return subject, d.webhook.Post(ctx, n.Recipient, subject, body)
	}
	return subject, fmt.Errorf("unknown channel %q", n.Channel)
}

// Send delivers n synchronously, so a Deliverer can back a Dispatcher directly
// when no queue is used.
func (d *Deliverer) Send(ctx context.Context, n Notification) error {
	_, err := d.Deliver(ctx, n)
	return err
}
