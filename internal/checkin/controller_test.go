package checkin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketflow/internal/shared/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(v Validator, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextAttendeeID, uuid.New())
		c.Set(middleware.ContextRole, role)
		c.Next()
	})
	SetupCheckInRoutes(group, NewController(v))
	return r
}

func postScan(r *gin.Engine, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/check-ins", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestController_CheckIn(t *testing.T) {
	f := setup(t)
	r := newTestRouter(f.validator, middleware.RoleScanner)

	w := postScan(r, gin.H{"token": f.ticket.QrToken.Token, "scanner_id": "gate-7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, string(OutcomeOK), data["outcome"])
	assert.Equal(t, float64(OutcomeOK.ID()), data["outcome_id"])

	w = postScan(r, gin.H{"token": f.ticket.QrToken.Token})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(OutcomeDuplicate), body["data"].(map[string]any)["outcome"])
}

func TestController_CheckIn_AttendeeForbidden(t *testing.T) {
	f := setup(t)
	w := postScan(newTestRouter(f.validator, middleware.RoleAttendee), gin.H{"token": f.ticket.QrToken.Token})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.attempts(t))
}
