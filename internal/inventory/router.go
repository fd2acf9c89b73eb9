package inventory

import "github.com/gin-gonic/gin"

// SetupInventoryRoutes registers the public seat map
func SetupInventoryRoutes(rg *gin.RouterGroup, controller *Controller) {
	events := rg.Group("/events")
	events.GET("/:id/seats", controller.GetSeatAvailability)
}
