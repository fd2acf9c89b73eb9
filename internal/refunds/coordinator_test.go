package refunds

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/inventory/inventorytest"
	"ticketflow/internal/payments"
	"ticketflow/internal/payments/paymentstest"
	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/testutil"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

type sentMail struct{ to, subject string }

type stubNotifier struct{ sent []sentMail }

func (n *stubNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.sent = append(n.sent, sentMail{to: to, subject: subject})
	return nil
}

type fixture struct {
	db          *gorm.DB
	clock       *clock.Fake
	gateway     *paymentstest.Gateway
	notifier    *stubNotifier
	repo        Repository
	coordinator Coordinator
	event       *inventory.Event
	seats       []inventory.EventSeat
}

func setup(t *testing.T) *fixture {
	t.Helper()
	models := append(inventorytest.Models(), &tickets.Ticket{}, &tickets.QrToken{},
		&payments.Payment{}, &RefundPolicy{}, &Refund{})
	db := testutil.OpenDB(t, models...)
	clk := clock.NewFake(baseTime)
	event, seats := inventorytest.SeedEvent(t, db, inventory.EventOnSale, baseTime.Add(72*time.Hour), 2, "250.00")

	gateway := paymentstest.NewGateway()
	notifier := &stubNotifier{}
	repo := NewRepository(db)
	coordinator := NewCoordinator(db, repo, inventory.NewLedger(db), tickets.NewRepository(db),
		payments.NewRepository(db), gateway, nil, notifier, clk, logger.NewNop())

	return &fixture{db: db, clock: clk, gateway: gateway, notifier: notifier, repo: repo,
		coordinator: coordinator, event: event, seats: seats}
}

// sell records a paid two-seat purchase and returns its tickets
func (f *fixture) sell(t *testing.T, attendee uuid.UUID) []tickets.Ticket {
	t.Helper()
	payment := &payments.Payment{
		AttendeeID:              attendee,
		AttendeeEmail:           "fan@example.com",
		EventID:                 f.event.ID,
		Subtotal:                decimal.RequireFromString("500.00"),
		TaxAmount:               decimal.RequireFromString("80.00"),
		TotalAmount:             decimal.RequireFromString("580.00"),
		AmountConfirmedMinor:    58000,
		Currency:                "mxn",
		TicketQuantity:          2,
		ExternalPaymentIntentID: "pi_" + uuid.NewString(),
	}
	require.NoError(t, f.db.Create(payment).Error)

	repo := tickets.NewRepository(f.db)
	issued := make([]tickets.Ticket, 0, len(f.seats))
	for _, seat := range f.seats {
		ticket := &tickets.Ticket{
			PaymentID:     payment.ID,
			AttendeeID:    attendee,
			EventID:       f.event.ID,
			EventSeatID:   seat.ID,
			CategoryLabel: seat.CategoryLabel,
			SeatLabel:     seat.Label(),
			UnitPrice:     seat.BasePrice,
		}
		require.NoError(t, repo.Issue(context.Background(), ticket))
		inventorytest.SetSeatStatus(t, f.db, seat, inventory.SeatSold)
		issued = append(issued, *ticket)
	}
	return issued
}

func (f *fixture) ticketStatus(t *testing.T, id uuid.UUID) tickets.Status {
	t.Helper()
	var stored tickets.Ticket
	require.NoError(t, f.db.First(&stored, "id = ?", id).Error)
	return stored.Status
}

func (f *fixture) refundFor(t *testing.T, ticketID uuid.UUID) *Refund {
	t.Helper()
	refund, err := f.repo.FindByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	require.NotNil(t, refund)
	return refund
}

func requireConflict(t *testing.T, err error, message string) apperror.Meta {
	t.Helper()
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected tagged error, got %v", err)
	require.Equal(t, apperror.KindConflict, appErr.Kind, appErr.Message)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
	return appErr.Meta
}

func TestTicketAmount(t *testing.T) {
	amount := TicketAmount(decimal.RequireFromString("250.00"), decimal.RequireFromString("500.00"), decimal.RequireFromString("80.00"))
	assert.Equal(t, "290.00", amount.StringFixed(2))

	amount = TicketAmount(decimal.RequireFromString("33.33"), decimal.RequireFromString("99.99"), decimal.RequireFromString("16.00"))
	assert.Equal(t, "38.66", amount.StringFixed(2))

	assert.Equal(t, "10.00", TicketAmount(decimal.RequireFromString("10"), decimal.Zero, decimal.Zero).StringFixed(2))
}

func TestMapProcessorStatus(t *testing.T) {
	assert.Equal(t, StatusProcessed, MapProcessorStatus("succeeded"))
	assert.Equal(t, StatusApproved, MapProcessorStatus("pending"))
	assert.Equal(t, StatusApproved, MapProcessorStatus("requires_action"))
	assert.Equal(t, StatusRejected, MapProcessorStatus("failed"))
	assert.Equal(t, StatusRejected, MapProcessorStatus("canceled"))
	assert.Equal(t, StatusApproved, MapProcessorStatus("something_new"))
}

func TestRequestRefund_ProcessedFreesSeat(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)

	refund, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{
		AttendeeID: attendee,
		TicketID:   sold[0].ID,
		Reason:     "cannot attend",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, refund.Status)
	assert.Equal(t, "290.00", refund.RefundAmount.StringFixed(2))
	assert.Equal(t, DefaultPolicyCode, refund.PolicyCode)
	require.NotNil(t, refund.ExternalRefundID)
	assert.Equal(t, "re_test_1", *refund.ExternalRefundID)
	assert.NotNil(t, refund.ProcessedAt)

	require.Len(t, f.gateway.Refunds, 1)
	assert.Equal(t, int64(29000), f.gateway.Refunds[0].AmountMinor)
	assert.Equal(t, "refund_"+refund.ID.String(), f.gateway.Refunds[0].IdempotencyKey)

	assert.Equal(t, tickets.StatusRefunded, f.ticketStatus(t, sold[0].ID))
	assert.Equal(t, inventory.SeatAvailable, inventorytest.SeatStatus(t, f.db, f.seats[0]))
	assert.Equal(t, tickets.StatusSold, f.ticketStatus(t, sold[1].ID), "other tickets of the payment stay sold")

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "fan@example.com", f.notifier.sent[0].to)
}

func TestRequestRefund_ProcessorRejectionLeavesTicket(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	f.gateway.RefundStatus = "failed"

	refund, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, refund.Status)

	assert.Equal(t, tickets.StatusSold, f.ticketStatus(t, sold[0].ID))
	assert.Equal(t, inventory.SeatSold, inventorytest.SeatStatus(t, f.db, f.seats[0]))
	assert.Empty(t, f.notifier.sent)
}

func TestRequestRefund_CallFailureMarksRejected(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	f.gateway.RefundErr = errors.New("processor timeout")

	_, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	require.True(t, apperror.Is(err, apperror.KindExternalService), "got %v", err)

	stored := f.refundFor(t, sold[0].ID)
	assert.Equal(t, StatusRejected, stored.Status)
	assert.Contains(t, stored.FailureReason, "processor timeout")
	assert.Equal(t, tickets.StatusSold, f.ticketStatus(t, sold[0].ID))
	assert.Equal(t, inventory.SeatSold, inventorytest.SeatStatus(t, f.db, f.seats[0]))
}

func TestRequestRefund_PendingIsReconciled(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	f.gateway.RefundStatus = "pending"

	refund, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, refund.Status)
	assert.Equal(t, tickets.StatusSold, f.ticketStatus(t, sold[0].ID))

	report, err := f.coordinator.Reconcile(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Zero(t, report.Checked, "fresh refunds are left alone")

	f.clock.Advance(15 * time.Minute)
	f.gateway.RefundStatusOnGet = "succeeded"
	report, err = f.coordinator.Reconcile(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"re_test_1"}, f.gateway.RefundLookups)

	assert.Equal(t, StatusProcessed, f.refundFor(t, sold[0].ID).Status)
	assert.Equal(t, tickets.StatusRefunded, f.ticketStatus(t, sold[0].ID))
	assert.Equal(t, inventory.SeatAvailable, inventorytest.SeatStatus(t, f.db, f.seats[0]))
}

func TestReconcile_ResubmitsRefundWithoutProcessorID(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)

	// A crash after the first local step leaves a REQUESTED row behind.
	stuck := &Refund{
		TicketID:      sold[1].ID,
		PaymentID:     sold[1].PaymentID,
		AttendeeID:    attendee,
		RefundAmount:  decimal.RequireFromString("290.00"),
		Currency:      "mxn",
		Status:        StatusRequested,
		PolicyCode:    DefaultPolicyCode,
		RequestedAt:   baseTime,
		LastAttemptAt: baseTime,
	}
	require.NoError(t, f.repo.Create(context.Background(), stuck))

	f.clock.Advance(time.Hour)
	report, err := f.coordinator.Reconcile(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	require.Len(t, f.gateway.Refunds, 1)
	assert.Equal(t, stuck.IdempotencyKey(), f.gateway.Refunds[0].IdempotencyKey)
	assert.Equal(t, tickets.StatusRefunded, f.ticketStatus(t, sold[1].ID))
}

func TestReconcile_ProcessorUnreachableKeepsPending(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	f.gateway.RefundStatus = "pending"

	_, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.gateway.GetRefundErr = errors.New("unreachable")
	report, err := f.coordinator.Reconcile(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, StatusApproved, f.refundFor(t, sold[0].ID).Status)
}

func TestRequestRefund_CheckedInTicket(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	require.NoError(t, f.db.Model(&tickets.Ticket{}).Where("id = ?", sold[0].ID).Update("status", tickets.StatusCheckedIn).Error)

	_, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	meta := requireConflict(t, err, "Checked-in tickets cannot be refunded")
	assert.Equal(t, string(tickets.StatusCheckedIn), meta["ticket_status"])
	assert.Empty(t, f.gateway.Refunds)
}

func TestRequestRefund_SingleUse(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	f.gateway.RefundStatus = "pending"

	first, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	require.NoError(t, err)

	_, err = f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	meta := requireConflict(t, err, "Ticket already has a refund")
	assert.Equal(t, first.ID.String(), meta["refund_id"])
	assert.Len(t, f.gateway.Refunds, 1)
}

func TestRequestRefund_PolicyWindow(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)
	require.NoError(t, f.repo.SavePolicy(context.Background(), &RefundPolicy{
		EventID:       f.event.ID,
		Code:          "48H_10PCT",
		AllowRefunds:  true,
		DeadlineHours: 48,
		FeeType:       FeePercentage,
		FeeAmount:     decimal.NewFromInt(10),
	}))

	refund, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "48H_10PCT", refund.PolicyCode)
	assert.Equal(t, "29.00", refund.FeeAmount.StringFixed(2))
	assert.Equal(t, "261.00", refund.RefundAmount.StringFixed(2))

	f.clock.Advance(25 * time.Hour)
	_, err = f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: attendee, TicketID: sold[1].ID})
	meta := requireConflict(t, err, "Refund window has closed")
	assert.Equal(t, "48H_10PCT", meta["policy_code"])
}

func TestRequestRefund_OtherAttendeesTicket(t *testing.T) {
	f := setup(t)
	sold := f.sell(t, uuid.New())

	_, err := f.coordinator.RequestRefund(context.Background(), RefundRequest{AttendeeID: uuid.New(), TicketID: sold[0].ID})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestRefundPolicy_Fee(t *testing.T) {
	amount := decimal.RequireFromString("100.00")

	assert.True(t, (&RefundPolicy{FeeType: FeeNone}).Fee(amount).IsZero())
	assert.Equal(t, "15.00", (&RefundPolicy{FeeType: FeeFixed, FeeAmount: decimal.NewFromInt(15)}).Fee(amount).StringFixed(2))
	assert.Equal(t, "100.00", (&RefundPolicy{FeeType: FeeFixed, FeeAmount: decimal.NewFromInt(500)}).Fee(amount).StringFixed(2))
	assert.Equal(t, "12.50", (&RefundPolicy{FeeType: FeePercentage, FeeAmount: decimal.RequireFromString("12.5")}).Fee(amount).StringFixed(2))
}
