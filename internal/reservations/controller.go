package reservations

import (
	"net/http"
	"time"

	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/middleware"
	"ticketflow/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

type holdSeatsBody struct {
	EventID   uuid.UUID   `json:"event_id" binding:"required"`
	SeatIDs   []uuid.UUID `json:"seat_ids" binding:"required,min=1"`
	ExpiresAt *time.Time  `json:"expires_at"`
}

// HoldSeats places an all-or-nothing hold for the caller
func (ctrl *Controller) HoldSeats(c *gin.Context) {
	attendeeID, err := middleware.AttendeeID(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	var body holdSeatsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, apperror.BadRequest("invalid request body: "+err.Error()))
		return
	}

	result, err := ctrl.service.HoldSeats(c.Request.Context(), HoldRequest{
		AttendeeID:      attendeeID,
		EventID:         body.EventID,
		SeatIDs:         body.SeatIDs,
		RequestedExpiry: body.ExpiresAt,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Seats held", result, nil)
}

// ReleaseReservation cancels one of the caller's holds
func (ctrl *Controller) ReleaseReservation(c *gin.Context) {
	attendeeID, err := middleware.AttendeeID(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apperror.BadRequest("invalid reservation id"))
		return
	}

	reservation, err := ctrl.service.ReleaseReservation(c.Request.Context(), attendeeID, reservationID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Reservation released", reservation, nil)
}
