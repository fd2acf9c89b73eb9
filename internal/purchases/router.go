package purchases

import "github.com/gin-gonic/gin"

// SetupPurchaseRoutes expects rg to carry authentication
func SetupPurchaseRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.POST("/purchases", controller.InitiatePurchase)
}

// SetupWebhookRoutes registers processor callbacks; they authenticate by signature
func SetupWebhookRoutes(r gin.IRoutes, controller *WebhookController) {
	r.POST("/webhooks/stripe", controller.HandleStripe)
}
