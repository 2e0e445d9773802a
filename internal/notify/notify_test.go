package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []Notification
	fail map[string]bool
}

func (r *recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[n.Recipient] {
		return errors.New("smtp down")
	}
	r.sent = append(r.sent, n)
	return nil
}

func TestDispatcher_FailuresAreIndependent(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"b@example.com": true}}
	d := NewDispatcher(rec, time.Second, nil)

	d.Dispatch(
		Email(KindTeamRegistered, "a@example.com", nil),
		Email(KindTeamRegistered, "b@example.com", nil),
		Email(KindTeamRegistered, "c@example.com", nil),
	)
	d.Wait()

	var got []string
	for _, n := range rec.sent {
		got = append(got, n.Recipient)
	}
	assert.ElementsMatch(t, []string{"a@example.com", "c@example.com"}, got)
}

func TestDispatcher_SkipsEmptyRecipientAndNil(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 0, nil)
	d.Dispatch(Email(KindEventPublished, "", nil))
	d.Wait()
	assert.Empty(t, rec.sent)

	var nilDispatcher *Dispatcher
	assert.NotPanics(t, func() {
		nilDispatcher.Dispatch(Email(KindEventPublished, "x@example.com", nil))
		nilDispatcher.Wait()
	})
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	slow := SenderFunc(func(ctx context.Context, _ Notification) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	d := NewDispatcher(slow, time.Second, nil)

	start := time.Now()
	d.Dispatch(Email(KindRegistrationConfirmed, "a@example.com", nil))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	close(release)
	d.Wait()
}

func TestRender(t *testing.T) {
	subject, body, err := Render(Email(KindRegistrationConfirmed, "a@example.com", map[string]string{
		"name":       "Asha",
		"event_name": "Hack <Night>",
		"ticket_id":  "FEL-20260301-ABC123",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Registration confirmed: Hack <Night>", subject)
	assert.Contains(t, body, "FEL-20260301-ABC123")
	assert.Contains(t, body, "Hack &lt;Night&gt;")
	assert.NotContains(t, body, "Amount due")
	assert.NotContains(t, body, "no value")
}

func TestRender_PlainDiscordBody(t *testing.T) {
	_, body, err := Render(Notification{Kind: KindEventPublished, Channel: ChannelDiscord, Data: map[string]string{
		"event_name":     "Rock & Roll",
		"organizer_name": "Music Club",
		"deadline":       "1 Mar",
	}})
	require.NoError(t, err)
	assert.Contains(t, body, "**Rock & Roll** by Music Club")
}

func TestRender_UnknownKind(t *testing.T) {
	_, _, err := Render(Notification{Kind: "nope"})
	assert.Error(t, err)
}

func TestDiscord_Post(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewDiscord(srv.Client()).Post(context.Background(), srv.URL, "New event", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "New event", got.Embeds[0].Title)
}

func TestDiscord_PostErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscord(srv.Client()).Post(context.Background(), srv.URL, "t", "c")
	assert.Error(t, err)
	assert.Error(t, NewDiscord(nil).Post(context.Background(), "ftp://nope", "t", "c"))
}

func TestMailer_Send(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", FromName: "Felicity"})
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "a@example.com", "Hi", "<p>x</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Hi\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/html")

	assert.Error(t, m.Send(context.Background(), "not-an-address", "Hi", "x"))
	assert.Error(t, NewMailer(SMTPConfig{}).Send(context.Background(), "a@example.com", "Hi", "x"))
}

type fakeMail struct{ to, subject string }

func (f *fakeMail) Send(_ context.Context, to, subject, _ string) error {
	f.to, f.subject = to, subject
	return nil
}

func TestDeliverer_RoutesByChannel(t *testing.T) {
	mail := &fakeMail{}
	d := NewDeliverer(mail, nil)

	subject, err := d.Deliver(context.Background(), Email(KindTeamInvite, "a@example.com", map[string]string{
		"leader_name": "Ravi", "team_name": "Bits",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Ravi invited you to join Bits", subject)
	assert.Equal(t, "a@example.com", mail.to)

	_, err = d.Deliver(context.Background(), Notification{Kind: KindEventPublished, Channel: ChannelDiscord, Recipient: "https://discord.example"})
	assert.Error(t, err)
}
