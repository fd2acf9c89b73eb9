// Command reconcile runs one refund reconciliation pass and exits. It is the
// manual counterpart of the reconcile_refunds background job.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"ticketflow/api/routes"
	"ticketflow/internal/notifications"
	"ticketflow/internal/payments"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/database"
	"ticketflow/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	olderThan := flag.Duration("older-than", cfg.Jobs.ReconcileAfter, "only refunds last attempted before this long ago")
	limit := flag.Int("limit", cfg.Jobs.ReconcileBatchSize, "maximum refunds to settle")
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the pass after this long")
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.InitDB(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	gateway := payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.RequestTimeout)
	mailer := notifications.NewMailer(cfg.Email, log.WithComponent("mailer"))
	app := routes.NewRouter(cfg, db.PostgreSQL, db.Redis, db, gateway, mailer, clock.New(), log)

	report, err := app.Refunds().Reconcile(ctx, *olderThan, *limit)
	if err != nil {
		log.Error("reconciliation failed", "error", err.Error())
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
