package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/pkg/queue"
)

// Enqueuer is the part of the job queue the QueueSender needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.JobType, payload any) error
}

// QueueSender pushes notifications to the Redis job queue for the worker to deliver.
type QueueSender struct {
	queue Enqueuer
}

// NewQueueSender creates a sender backed by the job queue.
func NewQueueSender(q Enqueuer) *QueueSender {
	return &QueueSender{queue: q}
}

// Send enqueues n as an email or webhook job.
func (s *QueueSender) Send(ctx context.Context, n Notification) error {
	t := queue.JobTypeEmail
	if n.Channel == ChannelDiscord {
		t = queue.JobTypeWebhook
	}
	return s.queue.Enqueue(ctx, t, n)
}

// LogSender only logs notifications. Used when no queue is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs n.
func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("channel", string(n.Channel)),
		zap.String("recipient", n.Recipient),
	)
	return nil
}
