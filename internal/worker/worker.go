// Package worker delivers queued notifications and records every attempt in the delivery log.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/pkg/queue"
)

// ErrInvalidJob marks jobs that can never succeed. They are dropped instead of retried.
var ErrInvalidJob = errors.New("invalid job")

// JobQueue is the part of the job queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job, key string) error
}

// Delivery renders and sends one notification, returning the rendered subject.
type Delivery interface {
	Deliver(ctx context.Context, n notify.Notification) (string, error)
}

// NotificationProcessor processes email and webhook jobs.
type NotificationProcessor struct {
	queue     JobQueue
	deliverer Delivery
	logs      store.NotificationLogs
	backoff   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationProcessor creates a notification processor. q may be nil when the processor
// is only used as an in-process notify.Sender.
func NewNotificationProcessor(q JobQueue, d Delivery, logs store.NotificationLogs, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{queue: q, deliverer: d, logs: logs, backoff: queue.RetryBackoff, logger: logger, now: time.Now}
}

// Process executes one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail && job.Type != queue.JobTypeWebhook {
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, job.Type)
	}
	var n notify.Notification
	if err := json.Unmarshal(job.Payload, &n); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", ErrInvalidJob, err)
	}
	return p.deliver(ctx, n, job.Attempt+1)
}

// Send delivers n immediately. It lets the processor back a notify.Dispatcher when no queue is configured.
func (p *NotificationProcessor) Send(ctx context.Context, n notify.Notification) error {
	return p.deliver(ctx, n, 1)
}

func (p *NotificationProcessor) deliver(ctx context.Context, n notify.Notification, attempt int) error {
	subject, err := p.deliverer.Deliver(ctx, n)

	entry := &models.NotificationLog{
		EventID:        n.EventID,
		RegistrationID: n.RegistrationID,
		Kind:           string(n.Kind),
		Channel:        string(n.Channel),
		Recipient:      n.Recipient,
		Subject:        subject,
		Attempt:        attempt,
	}
	if n.Channel == notify.ChannelDiscord {
		// webhook URLs carry a secret token
		entry.Recipient = "discord-webhook"
	}
	if err != nil {
		entry.Status = models.NotificationFailed
		entry.ErrorMessage = err.Error()
	} else {
		at := p.now()
		entry.Status = models.NotificationSent
		entry.SentAt = &at
	}
	if p.logs != nil {
		if lerr := p.logs.Create(ctx, entry); lerr != nil {
			p.logger.Warn("write notification log failed", zap.Error(lerr))
		}
	}

	if err != nil {
		return fmt.Errorf("deliver %s: %w", n.Kind, err)
	}
	p.logger.Info("notification delivered", zap.String("kind", string(n.Kind)), zap.String("channel", string(n.Channel)), zap.Int("attempt", attempt))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			if errors.Is(err, ErrInvalidJob) {
				p.logger.Error("dropping invalid job", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job, key); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *NotificationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
