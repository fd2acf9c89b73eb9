package reservations

import "github.com/gin-gonic/gin"

// SetupReservationRoutes expects rg to carry authentication
func SetupReservationRoutes(rg *gin.RouterGroup, controller *Controller) {
	reservations := rg.Group("/reservations")
	reservations.POST("", controller.HoldSeats)
	reservations.DELETE("/:id", controller.ReleaseReservation)
}
