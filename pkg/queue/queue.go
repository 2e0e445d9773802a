// Package queue is a Redis list job queue with bounded retries and a dead-letter list.
// The API enqueues notification jobs and cmd/worker consumes them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list of email notification jobs.
	QueueEmails = "felicity:jobs:email"
	// QueueWebhooks is the Redis list of Discord webhook jobs.
	QueueWebhooks = "felicity:jobs:webhook"
	// QueueDLQ holds jobs that failed MaxRetries times.
	QueueDLQ = "felicity:jobs:dead"
	// MaxRetries is the number of attempts before a job is dead-lettered.
	MaxRetries = 3
	// RetryBackoff is the pause after a failed attempt.
	RetryBackoff = 10 * time.Second

	pollTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEmail   JobType = "email"
	JobTypeWebhook JobType = "webhook"
)

// Job is the envelope pushed to a list.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Exhausted reports whether the job has used up its attempts.
func (j *Job) Exhausted() bool { return j.Attempt >= MaxRetries }

// KeyFor returns the list a job type is pushed to.
func KeyFor(t JobType) string {
	if t == JobTypeWebhook {
		return QueueWebhooks
	}
	return QueueEmails
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	keys   []string
	logger *zap.Logger
}

// NewQueue creates a queue consuming the email and webhook lists, emails first.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, keys: []string{QueueEmails, QueueWebhooks}, logger: logger}
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Enqueue wraps payload in a new Job and pushes it to the list for its type.
func (q *Queue) Enqueue(ctx context.Context, t JobType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{ID: uuid.NewString(), Type: t, Payload: body, CreatedAt: time.Now().UTC()}
	if err := q.push(ctx, KeyFor(t), job); err != nil {
		return err
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(t)))
	return nil
}

// Dequeue blocks until a job is available, the poll times out or ctx is done.
// It returns the job and the list it came from; a nil job means nothing was available.
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, pollTimeout, q.keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		// unreadable jobs can never succeed; park them with the dead letters
		q.logger.Warn("invalid job payload", zap.String("list", result[0]), zap.Error(err))
		_ = q.client.RPush(ctx, QueueDLQ, result[1]).Err()
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry pushes job back to key with its attempt incremented, or to the dead-letter list
// once it is exhausted. An empty key uses the job type's list.
func (q *Queue) Retry(ctx context.Context, job *Job, key string) error {
	job.Attempt++
	if job.Exhausted() {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dead-letter push failed", zap.String("job_id", job.ID), zap.Error(err))
			return err
		}
		q.logger.Warn("job dead-lettered", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if key == "" {
		key = KeyFor(job.Type)
	}
	if err := q.push(ctx, key, job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Depth returns the length of every list the queue uses, dead letters included.
func (q *Queue) Depth(ctx context.Context) (map[string]int64, error) {
	keys := append(append([]string(nil), q.keys...), QueueDLQ)
	pipe := q.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.LLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	out := make(map[string]int64, len(keys))
	for i, k := range keys {
		out[k] = cmds[i].Val()
	}
	return out, nil
}
