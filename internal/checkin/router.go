package checkin

import (
	"ticketflow/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupCheckInRoutes expects rg to carry authentication
func SetupCheckInRoutes(rg *gin.RouterGroup, controller *Controller) {
	checkIns := rg.Group("/check-ins")
	checkIns.Use(middleware.RequireRoles(middleware.RoleScanner, middleware.RoleAdmin))
	{
		checkIns.POST("", controller.CheckIn)
		checkIns.GET("/history", controller.History)
	}
}
