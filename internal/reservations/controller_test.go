package reservations

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

func newTestRouter(svc Service, attendee uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextAttendeeID, attendee)
		c.Next()
	})
	SetupReservationRoutes(group, NewController(svc))
	return r
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestController_HoldSeats(t *testing.T) {
	f := setup(t, 1)
	alice, bob := uuid.New(), uuid.New()

	w := postJSON(newTestRouter(f.svc, alice), "/api/v1/reservations", gin.H{
		"event_id": f.event.ID,
		"seat_ids": []uuid.UUID{f.seats[0].ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(newTestRouter(f.svc, bob), "/api/v1/reservations", gin.H{
		"event_id": f.event.ID,
		"seat_ids": []uuid.UUID{f.seats[0].ID},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	meta := body["errors"].(map[string]any)["meta"].(map[string]any)
	assert.Equal(t, alice.String(), meta["reserved_by_attendee_id"])
}

func TestController_HoldSeats_BadBody(t *testing.T) {
	f := setup(t, 1)

	w := postJSON(newTestRouter(f.svc, uuid.New()), "/api/v1/reservations", gin.H{"seat_ids": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestController_ReleaseReservation(t *testing.T) {
	f := setup(t, 1)
	alice := uuid.New()
	held, err := f.hold(alice, f.seats[0])
	require.NoError(t, err)

	r := newTestRouter(f.svc, alice)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/"+held.Reservations[0].ID.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/not-a-uuid", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
