package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
)

func TestError_MapsKindToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.ErrInvalidDates, http.StatusBadRequest, "InvalidDates"},
		{"not found", apperr.ErrTeamNotFound, http.StatusNotFound, "TeamNotFound"},
		{"conflict", apperr.ErrAlreadyRegistered, http.StatusConflict, "AlreadyRegistered"},
		{"authorization", apperr.ErrNotLeader, http.StatusForbidden, "NotLeader"},
		{"state", apperr.ErrAlreadyScanned, http.StatusUnprocessableEntity, "AlreadyScanned"},
		{"plain error", errors.New("db down"), http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestError_HidesInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, apperr.Internal("load event", errors.New("connection refused")))

	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), "internal error")
}
