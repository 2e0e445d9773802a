package messages

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// Handler handles chat HTTP endpoints. Live traffic goes over the websocket relay.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a messages handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// History handles GET /events/:id/messages. Optional query: limit.
func (h *Handler) History(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.History(c.Request.Context(), eventID, middleware.CurrentActor(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(list), "messages": list})
}

// SendRequest is the body for POST /events/:id/messages.
type SendRequest struct {
	Message string `json:"message" binding:"required"`
}

// Send handles POST /events/:id/messages.
func (h *Handler) Send(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.Send(c.Request.Context(), eventID, middleware.CurrentActor(c), req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// Delete handles DELETE /messages/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid message id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.CurrentActor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// TogglePin handles POST /messages/:id/pin.
func (h *Handler) TogglePin(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid message id")
		return
	}
	m, err := h.svc.TogglePin(c.Request.Context(), id, middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, m)
}
