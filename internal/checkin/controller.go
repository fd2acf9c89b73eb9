package checkin

import (
	"net/http"

	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/middleware"
	"ticketflow/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	validator Validator
}

func NewController(validator Validator) *Controller {
	return &Controller{validator: validator}
}

type checkInBody struct {
	Token     string `json:"token" binding:"required"`
	ScannerID string `json:"scanner_id"`
}

// CheckIn answers with 200 for every outcome; the outcome field says whether to admit
func (ctrl *Controller) CheckIn(c *gin.Context) {
	var body checkInBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, apperror.BadRequest("invalid request body: "+err.Error()))
		return
	}

	scannerID := body.ScannerID
	if scannerID == "" {
		if id, err := middleware.AttendeeID(c); err == nil {
			scannerID = id.String()
		}
	}

	result, err := ctrl.validator.CheckIn(c.Request.Context(), CheckInRequest{Token: body.Token, ScannerID: scannerID})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Scan recorded", result, nil)
}

func (ctrl *Controller) History(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.RespondError(c, apperror.BadRequest("token is required"))
		return
	}

	attempts, err := ctrl.validator.History(c.Request.Context(), token)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Check-in history", attempts, nil)
}
