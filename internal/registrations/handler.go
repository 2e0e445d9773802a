package registrations

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc           *Service
	presignExpire time.Duration
	logger        *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, presignExpire time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, presignExpire: presignExpire, logger: logger}
}

// Register handles POST /events/:id/register (participant).
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req RegisterInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	reg, err := h.svc.Register(c.Request.Context(), eventID, middleware.CurrentActor(c).ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"ticket_id":    reg.TicketID,
		"status":       reg.Status,
		"registration": reg,
	})
}

// ListMine handles GET /registrations/mine. Optional query: status.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListMine(c.Request.Context(), middleware.CurrentActor(c).ID, models.RegistrationStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

func filterFromQuery(c *gin.Context) models.RegistrationFilter {
	f := models.RegistrationFilter{
		Status: models.RegistrationStatus(c.Query("status")),
		Search: c.Query("search"),
	}
	switch c.Query("attendance") {
	case "attended":
		v := true
		f.Attended = &v
	case "not-attended":
		v := false
		f.Attended = &v
	}
	return f
}

// ListForEvent handles GET /events/:id/registrations (event organizer or admin).
// Query: status, attendance (attended|not-attended), search.
func (h *Handler) ListForEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	_, list, err := h.svc.ListForEvent(c.Request.Context(), eventID, middleware.CurrentActor(c), filterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Export handles GET /events/:id/registrations/export as CSV.
func (h *Handler) Export(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, list, err := h.svc.ListForEvent(c.Request.Context(), eventID, middleware.CurrentActor(c), filterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_registrations.csv"`, unsafeFilename.ReplaceAllString(ev.Name, "_")))
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"S.No", "Name", "Email", "Registration Date", "Status", "Payment Status", "Payment Amount", "Team", "Ticket ID", "Attendance", "Attendance Time"})
	for i, r := range list {
		team := "Individual"
		if r.TeamID != nil {
			team = r.TeamID.String()
		}
		attended, at := "No", ""
		if r.Attendance.Marked {
			attended = "Yes"
			if r.Attendance.MarkedAt != nil {
				at = r.Attendance.MarkedAt.Format(time.RFC3339)
			}
		}
		_ = w.Write([]string{
			strconv.Itoa(i + 1),
			r.ParticipantName,
			r.ParticipantEmail,
			r.RegisteredAt.Format("2006-01-02"),
			string(r.Status),
			string(r.Payment.Status),
			strconv.Itoa(r.Payment.Amount),
			team,
			r.TicketID,
			attended,
			at,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.logger.Error("write csv failed", zap.Error(err), zap.String("event_id", eventID.String()))
	}
}

// CancelRequest is the body for POST /registrations/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /registrations/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req CancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	reg, err := h.svc.Cancel(c.Request.Context(), id, middleware.CurrentActor(c).ID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// ResendConfirmation handles POST /registrations/:id/resend-confirmation.
func (h *Handler) ResendConfirmation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.svc.ResendConfirmation(c.Request.Context(), id, middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"registration_id": reg.ID, "ticket_id": reg.TicketID, "message": "confirmation resent"})
}

// GetTicket handles GET /tickets/:ticketId.
func (h *Handler) GetTicket(c *gin.Context) {
	t, err := h.svc.GetByTicket(c.Request.Context(), c.Param("ticketId"), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// ProofUploadRequest is the body for POST /registrations/:id/payment-proof/upload-url.
type ProofUploadRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// GenerateProofUploadURL handles POST /registrations/:id/payment-proof/upload-url.
func (h *Handler) GenerateProofUploadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req ProofUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	up, err := h.svc.PaymentProofUploadURL(c.Request.Context(), id, middleware.CurrentActor(c).ID, req.ContentType, h.presignExpire)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, up)
}

// AttachProofRequest is the body for POST /registrations/:id/payment-proof.
type AttachProofRequest struct {
	Key           string `json:"key" binding:"required"`
	TransactionID string `json:"transaction_id"`
}

// AttachProof handles POST /registrations/:id/payment-proof. Call after uploading to the presigned URL.
func (h *Handler) AttachProof(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req AttachProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.svc.AttachPaymentProof(c.Request.Context(), id, middleware.CurrentActor(c).ID, req.Key, req.TransactionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// GetProofURL handles GET /registrations/:id/payment-proof.
func (h *Handler) GetProofURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	url, err := h.svc.PaymentProofURL(c.Request.Context(), id, middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"download_url": url})
}

// ReviewRequest is the body for POST /registrations/:id/payment/review.
type ReviewRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// ReviewPayment handles POST /registrations/:id/payment/review (event organizer or admin).
func (h *Handler) ReviewPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.svc.ReviewPayment(c.Request.Context(), id, middleware.CurrentActor(c), *req.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}
