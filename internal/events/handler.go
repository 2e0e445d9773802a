package events

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
	"github.com/Pmjarvis/felicity-ems/pkg/storage"
)

// BannerStore uploads public banner images.
type BannerStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64, publicRead bool) (string, error)
}

// Handler handles event HTTP endpoints.
type Handler struct {
	svc     *Service
	banners BannerStore
	logger  *zap.Logger
}

// NewHandler creates an events handler. banners may be nil when S3 is not configured.
func NewHandler(svc *Service, banners BannerStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, banners: banners, logger: logger}
}

// Create handles POST /events (organizer).
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, err := h.svc.Create(c.Request.Context(), middleware.CurrentActor(c).ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// List handles GET /events. Query: search, type, eligibility, tags, organizer, from, to, followed, trending, limit, offset.
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{
		Search:       strings.TrimSpace(c.Query("search")),
		Type:         models.EventType(c.Query("type")),
		Eligibility:  models.Eligibility(c.Query("eligibility")),
		FollowedOnly: c.Query("followed") == "true",
		Trending:     c.Query("trending") == "true",
	}
	if tags := c.Query("tags"); tags != "" {
		q.Tags = strings.Split(tags, ",")
	}
	if s := c.Query("organizer"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid organizer id")
			return
		}
		q.OrganizerID = &id
	}
	var err error
	if q.From, err = parseTimeQuery(c, "from"); err != nil {
		response.BadRequest(c, "invalid from date")
		return
	}
	if q.To, err = parseTimeQuery(c, "to"); err != nil {
		response.BadRequest(c, "invalid to date")
		return
	}
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	q.Offset, _ = strconv.Atoi(c.Query("offset"))

	list, err := h.svc.ListPublished(c.Request.Context(), q, middleware.OptionalActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListMine handles GET /events/mine (organizer). Optional query: status.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListMine(c.Request.Context(), middleware.CurrentActor(c).ID, models.EventStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id, middleware.OptionalActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Update handles PUT /events/:id. Fields not editable in the current status are ignored.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, ignored, err := h.svc.Update(c.Request.Context(), id, middleware.CurrentActor(c), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(ignored) > 0 {
		names := make([]string, len(ignored))
		for i, f := range ignored {
			names[i] = string(f)
		}
		c.Header("X-Ignored-Fields", strings.Join(names, ","))
	}
	response.OK(c, e)
}

// Delete handles DELETE /events/:id. Only drafts can be deleted.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.CurrentActor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadBanner handles POST /events/:id/banner (multipart, form field: file).
func (h *Handler) UploadBanner(c *gin.Context) {
	if h.banners == nil {
		response.ServiceUnavailable(c, "S3 not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	actor := middleware.CurrentActor(c)
	e, err := h.svc.Authorize(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !CanEdit(e.Status, FieldBannerImage) {
		response.Error(c, apperr.ErrFieldNotEditable.With("banner can only change while the event is a draft"))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxBannerSize {
		response.BadRequest(c, "file size exceeds 5MB limit")
		return
	}
	contentType := file.Header.Get("Content-Type")
	ext, ok := storage.ExtensionFor(storage.ImageTypes, contentType)
	if !ok {
		response.BadRequest(c, "invalid file type: only jpg, png and webp allowed")
		return
	}
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	key := storage.BannerKey(id.String(), uuid.NewString(), ext)
	url, err := h.banners.Upload(c.Request.Context(), key, contentType, rc, file.Size, true)
	if err != nil {
		h.logger.Error("S3 upload failed", zap.Error(err), zap.String("event_id", id.String()), zap.String("key", key))
		response.Internal(c, "failed to upload file to storage")
		return
	}
	e, err = h.svc.SetBanner(c.Request.Context(), id, actor, url)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Notifications handles GET /events/:id/notifications (organizer owner or admin).
func (h *Handler) Notifications(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.svc.Notifications(c.Request.Context(), id, middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(logs), "notifications": logs})
}
