package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// Handler handles admin endpoints and the organizer password reset request.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an admin handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateOrganizer handles POST /admin/organizers.
func (h *Handler) CreateOrganizer(c *gin.Context) {
	var in CreateOrganizerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.svc.CreateOrganizer(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// ListOrganizers handles GET /admin/organizers.
func (h *Handler) ListOrganizers(c *gin.Context) {
	list, err := h.svc.ListOrganizers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(list), "organizers": list})
}

// Deactivate handles POST /admin/organizers/:id/deactivate.
func (h *Handler) Deactivate(c *gin.Context) { h.setActive(c, false) }

// Reactivate handles POST /admin/organizers/:id/reactivate.
func (h *Handler) Reactivate(c *gin.Context) { h.setActive(c, true) }

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return
	}
	u, err := h.svc.SetOrganizerActive(c.Request.Context(), id, active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

// ListResets handles GET /admin/password-resets?status=.
func (h *Handler) ListResets(c *gin.Context) {
	status := models.ResetStatus(c.Query("status"))
	switch status {
	case "", models.ResetPending, models.ResetApproved, models.ResetRejected:
	default:
		response.BadRequest(c, "invalid status")
		return
	}
	list, err := h.svc.ListResets(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(list), "requests": list})
}

// ReviewComment is the optional body of the approve and reject endpoints.
type ReviewComment struct {
	Comment string `json:"comment"`
}

// ApproveReset handles POST /admin/password-resets/:id/approve.
func (h *Handler) ApproveReset(c *gin.Context) { h.review(c, true) }

// RejectReset handles POST /admin/password-resets/:id/reject.
func (h *Handler) RejectReset(c *gin.Context) { h.review(c, false) }

func (h *Handler) review(c *gin.Context, approve bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}
	var body ReviewComment
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	req, err := h.svc.ReviewReset(c.Request.Context(), id, middleware.CurrentActor(c).ID, ReviewInput{Approve: approve, Comment: body.Comment})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, req)
}

// Stats handles GET /admin/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// ResetRequest is the body for POST /organizer/password-reset.
type ResetRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RequestReset handles POST /organizer/password-reset (organizer).
func (h *Handler) RequestReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "reason required")
		return
	}
	r, err := h.svc.RequestReset(c.Request.Context(), middleware.CurrentActor(c).ID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

// MyResets handles GET /organizer/password-reset (organizer).
func (h *Handler) MyResets(c *gin.Context) {
	list, err := h.svc.MyResets(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(list), "requests": list})
}
