// Command seed creates an on-sale event with a seat grid and prints bearer
// tokens for a demo attendee and scanner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/database"
	"ticketflow/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	opts := defaultOptions()
	flag.StringVar(&opts.Name, "name", opts.Name, "event name")
	flag.DurationVar(&opts.StartsIn, "starts-in", opts.StartsIn, "time from now until the event starts")
	flag.StringVar(&opts.TimeZone, "tz", opts.TimeZone, "IANA time zone the venue is in")
	flag.StringVar(&opts.Sections, "sections", opts.Sections, "comma-separated section names")
	flag.IntVar(&opts.Rows, "rows", opts.Rows, "rows per section")
	flag.IntVar(&opts.SeatsPerRow, "seats-per-row", opts.SeatsPerRow, "seats per row")
	flag.StringVar(&opts.Price, "price", opts.Price, "base seat price")
	flag.StringVar(&opts.Policy, "policy", opts.Policy, "refund policy: none, default or <hours>:<percent>")
	flag.DurationVar(&opts.TokenTTL, "token-ttl", opts.TokenTTL, "lifetime of the printed demo tokens")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.InitDB(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	seeder := NewSeeder(db.PostgreSQL, time.Now().UTC())
	result, err := seeder.Seed(ctx, opts)
	if err != nil {
		log.Error("seeding failed", "error", err.Error())
		os.Exit(1)
	}

	attendee, scanner, err := DemoTokens(cfg.JWT.Secret, time.Now(), opts.TokenTTL)
	if err != nil {
		log.Error("failed to sign demo tokens", "error", err.Error())
		os.Exit(1)
	}

	fmt.Printf("event:    %s (%s)\n", result.Event.ID, result.Event.Name)
	fmt.Printf("seats:    %d\n", result.Seats)
	fmt.Printf("policy:   %s\n", result.PolicyCode)
	fmt.Printf("attendee: %s\n", attendee)
	fmt.Printf("scanner:  %s\n", scanner)
}
