package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketflow/api/routes"
	"ticketflow/internal/jobs"
	"ticketflow/internal/notifications"
	"ticketflow/internal/payments"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/database"
	"ticketflow/internal/shared/middleware"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	appLogger := logger.NewWithWriter(os.Stdout, cfg.LogLevel)
	logger.SetDefault(appLogger)

	if envErr != nil {
		appLogger.Info("no .env file found, using process environment")
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("server stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	clk := clock.New()
	mailer := notifications.NewMailer(cfg.Email, appLogger.WithComponent("mailer"))

	var notifier routes.Notifier = mailer
	var consumer *notifications.Consumer
	if cfg.Kafka.Enabled {
		publisher, err := notifications.NewPublisher(cfg.Kafka, appLogger.WithComponent("notifications"))
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = publisher

		consumer, err = notifications.NewConsumer(cfg.Kafka, mailer, appLogger.WithComponent("notifications"))
		if err != nil {
			return err
		}
		defer consumer.Close()
	}

	gateway := payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.RequestTimeout)
	appRouter := routes.NewRouter(cfg, db.PostgreSQL, db.Redis, db, gateway, notifier, clk, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        setupEngine(cfg, db, appRouter, clk, appLogger),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("server running",
			"address", cfg.GetServerAddress(),
			"health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port),
			"version", Version,
			"commit", GitCommit,
			"built", BuildTime,
			"rate_limiting", cfg.RateLimit.Enabled,
			"kafka", cfg.Kafka.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Jobs.Enabled {
		runner := jobs.NewRunner(appRouter.Reservations(), appRouter.Refunds(), jobs.RedisLeases(db.Redis),
			cfg.Jobs, appLogger)
		g.Go(func() error { return runner.Run(gctx) })
	}

	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}

	err = g.Wait()
	appLogger.Info("server exited")
	return err
}

func setupEngine(cfg *config.Config, db *database.DB, appRouter *routes.Router, clk clock.Clock,
	appLogger *logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRateLimiter(db.Redis, cfg.RateLimit, clk)
		engine.Use(ratelimit.Middleware(limiter, appLogger.WithComponent("ratelimit")))
	}

	appRouter.SetupRoutes(engine)
	return engine
}
