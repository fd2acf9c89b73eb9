package inventory

import (
	"net/http"

	"ticketflow/internal/shared/apperror"
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

// GetSeatAvailability returns the seat map of an event
func (ctrl *Controller) GetSeatAvailability(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apperror.BadRequest("invalid event id"))
		return
	}

	availability, err := ctrl.service.SeatAvailability(c.Request.Context(), eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Seat availability", availability, nil)
}
