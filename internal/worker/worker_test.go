package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store/memory"
	"github.com/Pmjarvis/felicity-ems/pkg/queue"
)

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
	cancel  context.CancelFunc
}

func (q *fakeQueue) Dequeue(context.Context) (*queue.Job, string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		q.cancel()
		return nil, "", nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, queue.KeyFor(job.Type), nil
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, job)
	return nil
}

type fakeDelivery struct {
	fail map[string]bool
	sent []notify.Notification
}

func (d *fakeDelivery) Deliver(_ context.Context, n notify.Notification) (string, error) {
	if d.fail[n.Recipient] {
		return "Subject", errors.New("smtp unavailable")
	}
	d.sent = append(d.sent, n)
	return "Subject", nil
}

func job(t *testing.T, typ queue.JobType, n notify.Notification) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.NewString(), Type: typ, Payload: raw}
}

func TestProcess_LogsDelivery(t *testing.T) {
	st := memory.New()
	d := &fakeDelivery{fail: map[string]bool{"down@example.com": true}}
	p := NewNotificationProcessor(nil, d, st.NotificationLogs, nil)
	eventID := uuid.New()

	ok := notify.Email(notify.KindRegistrationConfirmed, "a@example.com", nil).ForEvent(eventID, nil)
	require.NoError(t, p.Process(context.Background(), job(t, queue.JobTypeEmail, ok)))

	bad := notify.Email(notify.KindRegistrationConfirmed, "down@example.com", nil).ForEvent(eventID, nil)
	j := job(t, queue.JobTypeEmail, bad)
	j.Attempt = 1
	err := p.Process(context.Background(), j)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidJob)

	logs, err := st.NotificationLogs.ListByEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.NotificationFailed, logs[0].Status)
	assert.Equal(t, 2, logs[0].Attempt)
	assert.Equal(t, "smtp unavailable", logs[0].ErrorMessage)
	assert.Equal(t, models.NotificationSent, logs[1].Status)
	assert.NotNil(t, logs[1].SentAt)
}

func TestProcess_InvalidJobs(t *testing.T) {
	p := NewNotificationProcessor(nil, &fakeDelivery{}, nil, nil)

	err := p.Process(context.Background(), &queue.Job{ID: "1", Type: "recording_upload", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrInvalidJob)

	err = p.Process(context.Background(), &queue.Job{ID: "2", Type: queue.JobTypeEmail, Payload: []byte(`not json`)})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestProcess_RedactsWebhookURL(t *testing.T) {
	st := memory.New()
	p := NewNotificationProcessor(nil, &fakeDelivery{}, st.NotificationLogs, nil)
	eventID := uuid.New()
	n := notify.Notification{Kind: notify.KindEventPublished, Channel: notify.ChannelDiscord,
		Recipient: "https://discord.com/api/webhooks/1/secret", EventID: &eventID}

	require.NoError(t, p.Send(context.Background(), n))
	logs, err := st.NotificationLogs.ListByEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotContains(t, logs[0].Recipient, "secret")
}

func TestRun_RetriesFailuresAndDropsInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &fakeDelivery{fail: map[string]bool{"down@example.com": true}}
	failing := job(t, queue.JobTypeEmail, notify.Email(notify.KindTeamInvite, "down@example.com", nil))
	q := &fakeQueue{cancel: cancel, jobs: []*queue.Job{
		job(t, queue.JobTypeEmail, notify.Email(notify.KindTeamInvite, "up@example.com", nil)),
		failing,
		{ID: "broken", Type: queue.JobTypeWebhook, Payload: []byte(`[`)},
	}}
	p := NewNotificationProcessor(q, d, nil, nil)
	p.backoff = 0

	p.Run(ctx)

	require.Len(t, d.sent, 1)
	assert.Equal(t, "up@example.com", d.sent[0].Recipient)
	require.Len(t, q.retried, 1)
	assert.Equal(t, failing.ID, q.retried[0].ID)
}
