package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/internal/store/memory"
	"github.com/Pmjarvis/felicity-ems/pkg/utils"
)

type outbox struct {
	mu   sync.Mutex
	list []notify.Notification
}

func (o *outbox) Send(_ context.Context, n notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, n)
	return nil
}

func (o *outbox) kinds() []notify.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ks []notify.Kind
	for _, n := range o.list {
		ks = append(ks, n.Kind)
	}
	return ks
}

type fixture struct {
	st       *store.Store
	svc      *Service
	out      *outbox
	notifier *notify.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	out := &outbox{}
	d := notify.NewDispatcher(out, time.Second, nil)
	svc := NewService(st, d, nil)
	return &fixture{st: st, svc: svc, out: out, notifier: d}
}

func (f *fixture) organizer(t *testing.T) *Provisioned {
	t.Helper()
	p, err := f.svc.CreateOrganizer(context.Background(), CreateOrganizerInput{
		Email: uuid.NewString() + "@clubs.example.com", OrganizerName: "Drama Club", Category: models.CategoryCultural,
	})
	require.NoError(t, err)
	return p
}

func TestCreateOrganizer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateOrganizer(ctx, CreateOrganizerInput{
		Email: "Drama@Clubs.Example.com", OrganizerName: " Drama Club ", Category: models.CategoryCultural,
	})
	require.NoError(t, err)
	assert.Len(t, p.Password, 12)
	assert.Equal(t, "drama@clubs.example.com", p.Organizer.Email)
	assert.Equal(t, "drama@clubs.example.com", p.Organizer.ContactEmail)
	assert.Equal(t, "Drama Club", p.Organizer.Name)

	stored, err := f.st.Users.GetByEmail(ctx, "drama@clubs.example.com")
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.True(t, utils.CheckPassword(p.Password, stored.Password))

	_, err = f.svc.CreateOrganizer(ctx, CreateOrganizerInput{
		Email: "drama@clubs.example.com", OrganizerName: "Again", Category: models.CategoryCultural,
	})
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
	_, err = f.svc.CreateOrganizer(ctx, CreateOrganizerInput{
		Email: "x@clubs.example.com", OrganizerName: "Bad", Category: "Gaming",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	f.notifier.Wait()
	assert.Equal(t, []notify.Kind{notify.KindOrganizerWelcome}, f.out.kinds())
}

func TestOrganizerActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.organizer(t)

	u, err := f.svc.SetOrganizerActive(ctx, p.Organizer.ID, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	list, err := f.svc.ListOrganizers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
	assert.Equal(t, 0, list[0].EventCount)

	u, err = f.svc.SetOrganizerActive(ctx, p.Organizer.ID, true)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	_, err = f.svc.SetOrganizerActive(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.organizer(t)
	adminID := uuid.New()

	_, err := f.svc.RequestReset(ctx, p.Organizer.ID, "too short")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	req, err := f.svc.RequestReset(ctx, p.Organizer.ID, "lost access to the club laptop")
	require.NoError(t, err)
	assert.Equal(t, models.ResetPending, req.Status)

	_, err = f.svc.RequestReset(ctx, p.Organizer.ID, "asking again while pending")
	assert.ErrorIs(t, err, apperr.ErrResetPending)

	pending, err := f.svc.ListResets(ctx, models.ResetPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Drama Club", pending[0].OrganizerName)

	reviewed, err := f.svc.ReviewReset(ctx, req.ID, adminID, ReviewInput{Approve: true, Comment: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.ResetApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, adminID, *reviewed.ReviewedBy)

	_, err = f.svc.ReviewReset(ctx, req.ID, adminID, ReviewInput{Approve: false})
	assert.ErrorIs(t, err, apperr.ErrResetAlreadyHandled)
	_, err = f.svc.ReviewReset(ctx, uuid.New(), adminID, ReviewInput{Approve: true})
	assert.ErrorIs(t, err, apperr.ErrResetNotFound)

	f.notifier.Wait()
	f.out.mu.Lock()
	var resetMail *notify.Notification
	for i := range f.out.list {
		if f.out.list[i].Kind == notify.KindPasswordReset {
			resetMail = &f.out.list[i]
		}
	}
	f.out.mu.Unlock()
	require.NotNil(t, resetMail)
	newPassword := resetMail.Data["password"]
	require.Len(t, newPassword, 12)

	stored, err := f.st.Users.GetByID(ctx, p.Organizer.ID)
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword(newPassword, stored.Password))
	assert.False(t, utils.CheckPassword(p.Password, stored.Password))

	// a new request is allowed once the previous one is handled
	_, err = f.svc.RequestReset(ctx, p.Organizer.ID, "forgot the new one as well")
	require.NoError(t, err)
	mine, err := f.svc.MyResets(ctx, p.Organizer.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestRejectKeepsPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.organizer(t)
	req, err := f.svc.RequestReset(ctx, p.Organizer.ID, "please reset my password")
	require.NoError(t, err)

	reviewed, err := f.svc.ReviewReset(ctx, req.ID, uuid.New(), ReviewInput{Approve: false, Comment: "ask in person"})
	require.NoError(t, err)
	assert.Equal(t, models.ResetRejected, reviewed.Status)

	stored, err := f.st.Users.GetByID(ctx, p.Organizer.ID)
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword(p.Password, stored.Password))
}

func TestStatsAndSeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.EnsureAdmin(ctx, "Admin@Felicity.example.com", "s3cret-pass"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "admin@felicity.example.com", "other"))
	p := f.organizer(t)

	now := time.Now()
	require.NoError(t, f.st.Events.Create(ctx, &models.Event{OrganizerID: p.Organizer.ID, Name: "Play", Type: models.EventTypeNormal,
		Status: models.EventPublished, Eligibility: models.EligibilityAll,
		RegistrationDeadline: now.Add(time.Hour), StartDate: now.Add(2 * time.Hour), EndDate: now.Add(3 * time.Hour)}))

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Users[models.RoleAdmin])
	assert.Equal(t, 1, st.Users[models.RoleOrganizer])
	assert.Equal(t, 1, st.Events[models.EventPublished])
	assert.Equal(t, 1, st.TotalEvents)
	assert.Equal(t, 0, st.ActiveRegistrations)

	admin, err := f.st.Users.GetByEmail(ctx, "admin@felicity.example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, utils.CheckPassword("s3cret-pass", admin.Password))
}

func TestHandler_RequestResetEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	p := f.organizer(t)
	h := NewHandler(f.svc, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, p.Organizer.ID)
		c.Set(middleware.ContextUserRole, string(models.RoleOrganizer))
		c.Next()
	})
	r.POST("/organizer/password-reset", h.RequestReset)

	do := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/organizer/password-reset", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := do(`{"reason":"locked out after travel"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(`{"reason":"locked out after travel"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "ResetPending", body.Code)
}
