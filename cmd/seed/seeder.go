package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/refunds"
	"ticketflow/internal/shared/middleware"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Options struct {
	Name        string
	StartsIn    time.Duration
	TimeZone    string
	Sections    string
	Rows        int
	SeatsPerRow int
	Price       string
	Policy      string
	TokenTTL    time.Duration
}

func defaultOptions() Options {
	return Options{
		Name:        "Demo Night",
		StartsIn:    14 * 24 * time.Hour,
		TimeZone:    "UTC",
		Sections:    "A,B",
		Rows:        5,
		SeatsPerRow: 10,
		Price:       "450.00",
		Policy:      "default",
		TokenTTL:    24 * time.Hour,
	}
}

type Result struct {
	Event      *inventory.Event
	Seats      int
	PolicyCode string
}

type Seeder struct {
	db  *gorm.DB
	now time.Time
}

func NewSeeder(db *gorm.DB, now time.Time) *Seeder {
	return &Seeder{db: db, now: now}
}

// Seed writes the event, its seats and its refund policy in one transaction
func (s *Seeder) Seed(ctx context.Context, opts Options) (*Result, error) {
	price, err := decimal.NewFromString(opts.Price)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("invalid price %q", opts.Price)
	}
	if _, err := time.LoadLocation(opts.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", opts.TimeZone, err)
	}
	sections := splitSections(opts.Sections)
	if len(sections) == 0 || opts.Rows <= 0 || opts.SeatsPerRow <= 0 {
		return nil, fmt.Errorf("seat grid must not be empty")
	}

	event := &inventory.Event{
		Name:     opts.Name,
		Status:   inventory.EventOnSale,
		StartsAt: s.now.Add(opts.StartsIn).Truncate(time.Minute),
		TimeZone: opts.TimeZone,
	}

	seats := make([]inventory.EventSeat, 0, len(sections)*opts.Rows*opts.SeatsPerRow)
	for _, section := range sections {
		for row := 1; row <= opts.Rows; row++ {
			for number := 1; number <= opts.SeatsPerRow; number++ {
				seats = append(seats, inventory.EventSeat{
					Section:       section,
					Row:           strconv.Itoa(row),
					Number:        strconv.Itoa(number),
					CategoryLabel: "Section " + section,
					BasePrice:     price,
					Status:        inventory.SeatAvailable,
				})
			}
		}
	}

	policyCode := "NONE"
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := inventory.NewLedger(tx)
		if err := ledger.CreateEvent(ctx, event); err != nil {
			return err
		}
		for i := range seats {
			seats[i].EventID = event.ID
		}
		if err := ledger.CreateSeats(ctx, seats); err != nil {
			return err
		}

		policy, err := parsePolicy(opts.Policy, event.ID)
		if err != nil || policy == nil {
			return err
		}
		policyCode = policy.Code
		return refunds.NewRepository(tx).SavePolicy(ctx, policy)
	})
	if err != nil {
		return nil, err
	}

	return &Result{Event: event, Seats: len(seats), PolicyCode: policyCode}, nil
}

// parsePolicy reads "none", "default" or "<hours>:<percent>"
func parsePolicy(raw string, eventID uuid.UUID) (*refunds.RefundPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return nil, nil
	case "default":
		return refunds.DefaultPolicy(eventID), nil
	}

	hours, percent, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("invalid refund policy %q", raw)
	}
	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 {
		return nil, fmt.Errorf("invalid refund deadline %q", hours)
	}
	p, err := decimal.NewFromString(percent)
	if err != nil || p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("invalid refund fee %q", percent)
	}

	return &refunds.RefundPolicy{
		EventID:       eventID,
		Code:          fmt.Sprintf("%dH_%sPCT", h, p.String()),
		AllowRefunds:  true,
		DeadlineHours: h,
		FeeType:       refunds.FeePercentage,
		FeeAmount:     p,
	}, nil
}

func splitSections(raw string) []string {
	var sections []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

// DemoTokens signs an attendee and a scanner token with secret
func DemoTokens(secret string, now time.Time, ttl time.Duration) (attendee, scanner string, err error) {
	sign := func(role, email string) (string, error) {
		claims := middleware.Claims{
			UserID: uuid.NewString(),
			Email:  email,
			Role:   role,
			Type:   "access",
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
		}
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	}

	if attendee, err = sign(middleware.RoleAttendee, "attendee@ticketflow.local"); err != nil {
		return "", "", err
	}
	if scanner, err = sign(middleware.RoleScanner, "gate@ticketflow.local"); err != nil {
		return "", "", err
	}
	return attendee, scanner, nil
}
