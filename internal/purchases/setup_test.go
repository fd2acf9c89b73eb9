package purchases

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/inventory/inventorytest"
	"ticketflow/internal/payments"
	"ticketflow/internal/payments/paymentstest"
	"ticketflow/internal/reservations"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/testutil"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

type sentMessage struct {
	to, subject, body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to: to, subject: subject, body: body})
	return n.err
}

type fixture struct {
	db           *gorm.DB
	clock        *clock.Fake
	gateway      *paymentstest.Gateway
	notifier     *recordingNotifier
	holds        reservations.Service
	orchestrator Orchestrator
	finalizer    Finalizer
	payments     payments.Repository
	event        *inventory.Event
	seats        []inventory.EventSeat
}

func setup(t *testing.T, seatCount int) *fixture {
	t.Helper()
	models := append(inventorytest.Models(),
		&reservations.Reservation{}, &tickets.Ticket{}, &tickets.QrToken{},
		&payments.Payment{}, &payments.PaymentAnomaly{}, &payments.WebhookEvent{})
	db := testutil.OpenDB(t, models...)
	clk := clock.NewFake(baseTime)
	log := logger.NewNop()

	event, seats := inventorytest.SeedEvent(t, db, inventory.EventOnSale, baseTime.Add(72*time.Hour), seatCount, "250.00")

	ledger := inventory.NewLedger(db)
	reservationRepo := reservations.NewRepository(db)
	ticketRepo := tickets.NewRepository(db)
	paymentRepo := payments.NewRepository(db)
	gateway := paymentstest.NewGateway()
	notifier := &recordingNotifier{}

	return &fixture{
		db:       db,
		clock:    clk,
		gateway:  gateway,
		notifier: notifier,
		holds: reservations.NewService(db, reservationRepo, ledger, ticketRepo, nil, clk, log,
			reservations.Options{MaxHold: 15 * time.Minute, MaxSeatsPerOrder: 10}),
		orchestrator: NewOrchestrator(db, ledger, reservationRepo, ticketRepo, gateway, clk, log,
			OrchestratorOptions{TaxRate: decimal.RequireFromString("0.16"), Currency: "mxn", MaxSeatsPerOrder: 10}),
		finalizer: NewFinalizer(db, ledger, reservationRepo, ticketRepo, paymentRepo, nil, notifier, clk, log,
			FinalizerOptions{Currency: "mxn"}),
		payments: paymentRepo,
		event:    event,
		seats:    seats,
	}
}

func seatIDs(seats ...inventory.EventSeat) []uuid.UUID {
	ids := make([]uuid.UUID, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	return ids
}

func (f *fixture) hold(t *testing.T, attendee uuid.UUID, seats ...inventory.EventSeat) *reservations.HoldResult {
	t.Helper()
	result, err := f.holds.HoldSeats(context.Background(), reservations.HoldRequest{
		AttendeeID: attendee,
		EventID:    f.event.ID,
		SeatIDs:    seatIDs(seats...),
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) purchase(t *testing.T, attendee uuid.UUID, seats ...inventory.EventSeat) *PurchaseResult {
	t.Helper()
	result, err := f.orchestrator.InitiatePurchase(context.Background(), PurchaseRequest{
		AttendeeID:    attendee,
		AttendeeEmail: "fan@example.com",
		SeatIDs:       seatIDs(seats...),
	})
	require.NoError(t, err)
	return result
}

// confirmation builds the processor's success event for the last authorization
func (f *fixture) confirmation(t *testing.T, purchase *PurchaseResult) payments.Event {
	t.Helper()
	require.NotEmpty(t, f.gateway.Authorizations)
	auth := f.gateway.Authorizations[len(f.gateway.Authorizations)-1]
	return payments.Event{
		ID:                 "evt_" + purchase.PaymentIntentID,
		Type:               payments.EventPaymentSucceeded,
		PaymentReferenceID: purchase.PaymentIntentID,
		Metadata:           auth.Metadata,
		AmountConfirmed:    auth.AmountMinor,
		Currency:           auth.Currency,
	}
}

func count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
