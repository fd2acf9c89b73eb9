package refunds

import (
	"net/http"

	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/middleware"
	"ticketflow/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	coordinator Coordinator
}

func NewController(coordinator Coordinator) *Controller {
	return &Controller{coordinator: coordinator}
}

type refundBody struct {
	Reason string `json:"reason" binding:"max=500"`
}

// RequestRefund refunds one of the caller's tickets
func (ctrl *Controller) RequestRefund(c *gin.Context) {
	attendeeID, err := middleware.AttendeeID(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apperror.BadRequest("invalid ticket id"))
		return
	}

	var body refundBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.RespondError(c, apperror.BadRequest("invalid request body: "+err.Error()))
			return
		}
	}

	refund, err := ctrl.coordinator.RequestRefund(c.Request.Context(), RefundRequest{
		AttendeeID: attendeeID,
		TicketID:   ticketID,
		Reason:     body.Reason,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	code, message := http.StatusAccepted, "Refund submitted"
	switch refund.Status {
	case StatusProcessed:
		code, message = http.StatusOK, "Refund processed"
	case StatusRejected:
		code, message = http.StatusOK, "Refund rejected by the payment processor"
	}
	response.RespondJSON(c, "success", code, message, refund, nil)
}
