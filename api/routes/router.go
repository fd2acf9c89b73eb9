package routes

import (
	"context"
	"net/http"

	"ticketflow/internal/checkin"
	"ticketflow/internal/inventory"
	"ticketflow/internal/payments"
	"ticketflow/internal/purchases"
	"ticketflow/internal/refunds"
	"ticketflow/internal/reservations"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/middleware"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/cache"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Notifier delivers attendee emails
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// HealthChecker reports whether backing stores answer
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Router owns the wired services behind the HTTP surface
type Router struct {
	config *config.Config
	health HealthChecker
	clock  clock.Clock
	log    *logger.Logger

	inventory    inventory.Service
	reservations reservations.Service
	orchestrator purchases.Orchestrator
	finalizer    purchases.Finalizer
	refunds      refunds.Coordinator
	checkin      checkin.Validator

	gateway  payments.Gateway
	payments payments.Repository
}

// NewRouter builds every service on db and redisClient
func NewRouter(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, health HealthChecker,
	gateway payments.Gateway, notifier Notifier, clk clock.Clock, log *logger.Logger) *Router {
	ledger := inventory.NewLedger(db)
	reservationRepo := reservations.NewRepository(db)
	ticketRepo := tickets.NewRepository(db)
	paymentRepo := payments.NewRepository(db)
	refundRepo := refunds.NewRepository(db)

	availability := inventory.NewService(ledger, cache.NewService(redisClient), cfg.Redis.AvailabilityTTL,
		log.WithComponent("inventory"))

	return &Router{
		config:    cfg,
		health:    health,
		clock:     clk,
		log:       log,
		inventory: availability,
		reservations: reservations.NewService(db, reservationRepo, ledger, ticketRepo, availability, clk,
			log.WithComponent("reservations"), reservations.Options{
				MaxHold:          cfg.Sales.MaxHold,
				MaxSeatsPerOrder: cfg.Sales.MaxSeatsPerOrder,
			}),
		orchestrator: purchases.NewOrchestrator(db, ledger, reservationRepo, ticketRepo, gateway, clk,
			log.WithComponent("purchases"), purchases.OrchestratorOptions{
				TaxRate:          cfg.Sales.TaxRate,
				Currency:         cfg.Sales.Currency,
				MaxSeatsPerOrder: cfg.Sales.MaxSeatsPerOrder,
			}),
		finalizer: purchases.NewFinalizer(db, ledger, reservationRepo, ticketRepo, paymentRepo, availability,
			notifier, clk, log.WithComponent("finalizer"), purchases.FinalizerOptions{
				Currency: cfg.Sales.Currency,
			}),
		refunds: refunds.NewCoordinator(db, refundRepo, ledger, ticketRepo, paymentRepo, gateway,
			availability, notifier, clk, log.WithComponent("refunds")),
		checkin: checkin.NewValidator(db, checkin.NewRepository(db), ticketRepo, ledger, refundRepo, clk,
			log.WithComponent("checkin")),
		gateway:  gateway,
		payments: paymentRepo,
	}
}

func (r *Router) Reservations() reservations.Service { return r.reservations }
func (r *Router) Refunds() refunds.Coordinator       { return r.refunds }

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	purchases.SetupWebhookRoutes(engine, purchases.NewWebhookController(r.gateway, r.finalizer, r.payments,
		r.clock, r.log.WithComponent("webhooks")))

	api := engine.Group(r.config.GetAPIBasePath())
	inventory.SetupInventoryRoutes(api, inventory.NewController(r.inventory))

	authed := api.Group("")
	authed.Use(middleware.JWTAuth(r.config.JWT.Secret))
	{
		attendee := authed.Group("")
		attendee.Use(middleware.RequireRoles(middleware.RoleAttendee, middleware.RoleAdmin))
		reservations.SetupReservationRoutes(attendee, reservations.NewController(r.reservations))
		purchases.SetupPurchaseRoutes(attendee, purchases.NewController(r.orchestrator))
		refunds.SetupRefundRoutes(attendee, refunds.NewController(r.refunds))

		checkin.SetupCheckInRoutes(authed, checkin.NewController(r.checkin))
	}
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.health.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": r.clock.Now(),
				"service":   "ticketflow",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": r.clock.Now(),
			"service":   "ticketflow",
		})
	})

	engine.GET("/metrics", metrics.Handler())
}
