package clubs

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// Handler handles club directory and profile endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a clubs handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /clubs?category=.
func (h *Handler) List(c *gin.Context) {
	category := models.OrganizerCategory(c.Query("category"))
	if category != "" && !models.ValidCategory(category) {
		response.BadRequest(c, "invalid category")
		return
	}
	list, err := h.svc.List(c.Request.Context(), category, middleware.OptionalActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(list), "clubs": list})
}

func organizerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return uuid.Nil, false
	}
	return id, true
}

// Get handles GET /clubs/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := organizerID(c)
	if !ok {
		return
	}
	d, err := h.svc.Get(c.Request.Context(), id, middleware.OptionalActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, d)
}

// Follow handles POST /clubs/:id/follow (participant).
func (h *Handler) Follow(c *gin.Context) {
	id, ok := organizerID(c)
	if !ok {
		return
	}
	if err := h.svc.Follow(c.Request.Context(), middleware.CurrentActor(c).ID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"organizer_id": id, "followed": true})
}

// Unfollow handles DELETE /clubs/:id/follow (participant).
func (h *Handler) Unfollow(c *gin.Context) {
	id, ok := organizerID(c)
	if !ok {
		return
	}
	if err := h.svc.Unfollow(c.Request.Context(), middleware.CurrentActor(c).ID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"organizer_id": id, "followed": false})
}

// Following handles GET /clubs/following (participant).
func (h *Handler) Following(c *gin.Context) {
	list, err := h.svc.Following(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(list), "clubs": list})
}

// GetProfile handles GET /profile.
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.svc.Profile(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// UpdateProfile handles PUT /profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var patch ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.svc.UpdateProfile(c.Request.Context(), middleware.CurrentActor(c).ID, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// Stats handles GET /organizer/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}
