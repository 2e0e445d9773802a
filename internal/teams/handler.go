package teams

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// Handler handles team HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a teams handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateRequest is the body for POST /events/:id/teams.
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /events/:id/teams.
func (h *Handler) Create(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t, err := h.svc.Create(c.Request.Context(), eventID, middleware.CurrentActor(c).ID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"team_id": t.ID, "invite_code": t.InviteCode, "team": t})
}

// JoinRequest is the body for POST /teams/join.
type JoinRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

// Join handles POST /teams/join.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t, err := h.svc.Join(c.Request.Context(), req.InviteCode, middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"team_id": t.ID, "current_size": t.CurrentSize, "required_size": t.RequiredSize, "status": t.Status})
}

func teamID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid team id")
		return uuid.Nil, false
	}
	return id, true
}

// Finalize handles POST /teams/:id/finalize (leader).
func (h *Handler) Finalize(c *gin.Context) {
	id, ok := teamID(c)
	if !ok {
		return
	}
	t, regs, err := h.svc.Finalize(c.Request.Context(), id, middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	tickets := make([]string, len(regs))
	for i, r := range regs {
		tickets[i] = r.TicketID
	}
	response.OK(c, gin.H{"team_id": t.ID, "registration_count": len(regs), "ticket_ids": tickets})
}

// ListMine handles GET /teams/mine.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListMine(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /teams/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := teamID(c)
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id, middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// RemoveMember handles DELETE /teams/:id/members/:userId (leader).
func (h *Handler) RemoveMember(c *gin.Context) {
	id, ok := teamID(c)
	if !ok {
		return
	}
	memberID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	t, err := h.svc.RemoveMember(c.Request.Context(), id, middleware.CurrentActor(c).ID, memberID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// Leave handles POST /teams/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := teamID(c)
	if !ok {
		return
	}
	t, err := h.svc.Leave(c.Request.Context(), id, middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// Cancel handles DELETE /teams/:id (leader).
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := teamID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Cancel(c.Request.Context(), id, middleware.CurrentActor(c).ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// InviteRequest is the body for POST /teams/:id/invite.
type InviteRequest struct {
	Emails []string `json:"emails" binding:"required,min=1,max=10,dive,email"`
}

// Invite handles POST /teams/:id/invite (leader). Sends the invite code by email.
func (h *Handler) Invite(c *gin.Context) {
	id, ok := teamID(c)
	if !ok {
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	n, err := h.svc.ShareInvite(c.Request.Context(), id, middleware.CurrentActor(c).ID, req.Emails)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"sent": n})
}
