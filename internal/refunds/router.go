package refunds

import "github.com/gin-gonic/gin"

// SetupRefundRoutes expects rg to carry authentication
func SetupRefundRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.POST("/tickets/:id/refund", controller.RequestRefund)
}
