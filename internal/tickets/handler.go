package tickets

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// Handler handles ticket HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ValidateRequest is the body for POST /tickets/validate.
type ValidateRequest struct {
	TicketID string    `json:"ticket_id" binding:"required"`
	EventID  uuid.UUID `json:"event_id" binding:"required"`
}

// Validate handles POST /tickets/validate (event organizer or admin).
// Rejected scans of an existing ticket answer 200 with valid=false and the reason.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.svc.ValidateAndMark(c.Request.Context(), req.TicketID, req.EventID, middleware.CurrentActor(c))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrWrongEvent), errors.Is(err, apperr.ErrInvalidStatus), errors.Is(err, apperr.ErrAlreadyScanned):
			e := apperr.As(err)
			response.OK(c, gin.H{"valid": false, "reason": e.Message, "code": e.Code})
		default:
			response.Error(c, err)
		}
		return
	}
	response.OK(c, gin.H{"valid": true, "admission": a})
}

// AttendanceReport handles GET /events/:id/attendance (event organizer or admin).
func (h *Handler) AttendanceReport(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	r, err := h.svc.AttendanceReport(c.Request.Context(), eventID, middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, r)
}

// QRCode handles GET /tickets/:ticketId/qr as image/png.
func (h *Handler) QRCode(c *gin.Context) {
	png, err := h.svc.QRCode(c.Request.Context(), c.Param("ticketId"), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
