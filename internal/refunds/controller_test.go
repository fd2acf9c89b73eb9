package refunds

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketflow/internal/shared/middleware"
	"ticketflow/internal/tickets"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(coordinator Coordinator, attendee uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextAttendeeID, attendee)
		c.Next()
	})
	SetupRefundRoutes(group, NewController(coordinator))
	return r
}

func postRefund(r *gin.Engine, ticketID string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/"+ticketID+"/refund", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestController_RequestRefund(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	r := newTestRouter(f.coordinator, attendee)

	w := postRefund(r, sold[0].ID.String(), gin.H{"reason": "schedule conflict"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(StatusProcessed), body["data"].(map[string]any)["status"])
	assert.Equal(t, tickets.StatusRefunded, f.ticketStatus(t, sold[0].ID))

	w = postRefund(r, sold[0].ID.String(), gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestController_RequestRefund_BadTicketID(t *testing.T) {
	f := setup(t)
	w := postRefund(newTestRouter(f.coordinator, uuid.New()), "not-a-uuid", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
