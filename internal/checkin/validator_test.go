package checkin

import (
	"context"
	"testing"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/inventory/inventorytest"
	"ticketflow/internal/refunds"
	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/testutil"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// The show starts at 20:00 in Mexico City, which is 02:00 UTC the next day.
var showStart = time.Date(2026, 6, 13, 2, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	clock     *clock.Fake
	validator Validator
	event     *inventory.Event
	ticket    *tickets.Ticket
}

func setup(t *testing.T) *fixture {
	t.Helper()
	models := append(inventorytest.Models(), &tickets.Ticket{}, &tickets.QrToken{}, &refunds.Refund{}, &CheckInAttempt{})
	db := testutil.OpenDB(t, models...)

	event, seats := inventorytest.SeedEvent(t, db, inventory.EventOnSale, showStart, 1, "250.00")
	require.NoError(t, db.Model(event).Update("time_zone", "America/Mexico_City").Error)
	event.TimeZone = "America/Mexico_City"

	ticketRepo := tickets.NewRepository(db)
	ticket := &tickets.Ticket{
		PaymentID:   uuid.New(),
		AttendeeID:  uuid.New(),
		EventID:     event.ID,
		EventSeatID: seats[0].ID,
		SeatLabel:   seats[0].Label(),
		UnitPrice:   seats[0].BasePrice,
	}
	require.NoError(t, ticketRepo.Issue(context.Background(), ticket))

	// 18:30 local on the day of the show
	clk := clock.NewFake(time.Date(2026, 6, 13, 0, 30, 0, 0, time.UTC))
	v := NewValidator(db, NewRepository(db), ticketRepo, inventory.NewLedger(db), refunds.NewRepository(db),
		clk, logger.NewNop())
	return &fixture{db: db, clock: clk, validator: v, event: event, ticket: ticket}
}

func (f *fixture) scan(t *testing.T, token string) *Result {
	t.Helper()
	result, err := f.validator.CheckIn(context.Background(), CheckInRequest{Token: token, ScannerID: "gate-1"})
	require.NoError(t, err)
	return result
}

func (f *fixture) attempts(t *testing.T) []CheckInAttempt {
	t.Helper()
	var attempts []CheckInAttempt
	require.NoError(t, f.db.Order("scanned_at").Find(&attempts).Error)
	return attempts
}

func TestCheckIn_FirstScanWinsThenDuplicate(t *testing.T) {
	f := setup(t)
	token := f.ticket.QrToken.Token

	first := f.scan(t, token)
	assert.Equal(t, OutcomeOK, first.Outcome)
	require.NotNil(t, first.CheckedInAt)

	f.clock.Advance(time.Minute)
	second := f.scan(t, token)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	var stored tickets.Ticket
	require.NoError(t, f.db.First(&stored, "id = ?", f.ticket.ID).Error)
	assert.Equal(t, tickets.StatusCheckedIn, stored.Status)
	require.NotNil(t, stored.CheckedInAt)
	assert.True(t, stored.CheckedInAt.Equal(first.CheckedInAt.UTC()))

	history, err := f.validator.History(context.Background(), token)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, OutcomeOK, history[0].Outcome)
	assert.Equal(t, OutcomeDuplicate, history[1].Outcome)
}

func TestCheckIn_UnknownTokenIsLogged(t *testing.T) {
	f := setup(t)

	result := f.scan(t, "forged-token")
	assert.Equal(t, OutcomeInvalid, result.Outcome)
	assert.Nil(t, result.TicketID)

	attempts := f.attempts(t)
	require.Len(t, attempts, 1)
	assert.Nil(t, attempts[0].TicketQrID)
	assert.Equal(t, "forged-token", attempts[0].PresentedToken)
	assert.Equal(t, "gate-1", attempts[0].ScannerID)
}

func TestCheckIn_RefundedTicketIsInvalid(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Model(&tickets.Ticket{}).Where("id = ?", f.ticket.ID).Update("status", tickets.StatusRefunded).Error)

	result := f.scan(t, f.ticket.QrToken.Token)
	assert.Equal(t, OutcomeInvalid, result.Outcome)
	require.Len(t, f.attempts(t), 1)
}

func (f *fixture) openRefund(t *testing.T, status refunds.Status) {
	t.Helper()
	refund := &refunds.Refund{
		TicketID:      f.ticket.ID,
		PaymentID:     f.ticket.PaymentID,
		AttendeeID:    f.ticket.AttendeeID,
		RefundAmount:  f.ticket.UnitPrice,
		Currency:      "mxn",
		Status:        status,
		PolicyCode:    refunds.DefaultPolicyCode,
		RequestedAt:   f.clock.Now(),
		LastAttemptAt: f.clock.Now(),
	}
	require.NoError(t, refunds.NewRepository(f.db).Create(context.Background(), refund))
}

func TestCheckIn_RefundInFlightIsInvalid(t *testing.T) {
	for _, status := range []refunds.Status{refunds.StatusRequested, refunds.StatusApproved} {
		t.Run(status.String(), func(t *testing.T) {
			f := setup(t)
			f.openRefund(t, status)

			result := f.scan(t, f.ticket.QrToken.Token)
			assert.Equal(t, OutcomeInvalid, result.Outcome)
			assert.Equal(t, "refund pending", result.Reason)

			var stored tickets.Ticket
			require.NoError(t, f.db.First(&stored, "id = ?", f.ticket.ID).Error)
			assert.Equal(t, tickets.StatusSold, stored.Status)
			assert.Nil(t, stored.CheckedInAt)

			attempts := f.attempts(t)
			require.Len(t, attempts, 1)
			assert.Equal(t, OutcomeInvalid, attempts[0].Outcome)
		})
	}
}

func TestCheckIn_RejectedRefundStillAdmits(t *testing.T) {
	f := setup(t)
	f.openRefund(t, refunds.StatusRejected)

	assert.Equal(t, OutcomeOK, f.scan(t, f.ticket.QrToken.Token).Outcome)
}

func TestCheckIn_OutsideWindow(t *testing.T) {
	f := setup(t)

	// 20:00 local the evening before
	f.clock.Set(time.Date(2026, 6, 12, 2, 0, 0, 0, time.UTC))
	result := f.scan(t, f.ticket.QrToken.Token)
	assert.Equal(t, OutcomeOutsideWindow, result.Outcome)
	assert.Equal(t, "valid on 2026-06-12", result.Reason)

	var stored tickets.Ticket
	require.NoError(t, f.db.First(&stored, "id = ?", f.ticket.ID).Error)
	assert.Equal(t, tickets.StatusSold, stored.Status)

	// 23:30 local on the day: still in window though already the next UTC date
	f.clock.Set(time.Date(2026, 6, 13, 5, 30, 0, 0, time.UTC))
	assert.Equal(t, OutcomeOK, f.scan(t, f.ticket.QrToken.Token).Outcome)
	assert.Len(t, f.attempts(t), 2)
}

func TestCheckIn_RequiresTokenAndScanner(t *testing.T) {
	f := setup(t)

	_, err := f.validator.CheckIn(context.Background(), CheckInRequest{Token: "  ", ScannerID: "gate-1"})
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))

	_, err = f.validator.CheckIn(context.Background(), CheckInRequest{Token: f.ticket.QrToken.Token})
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
	assert.Empty(t, f.attempts(t))
}

func TestInWindow(t *testing.T) {
	event := &inventory.Event{StartsAt: showStart, TimeZone: "America/Mexico_City"}

	assert.True(t, InWindow(event, time.Date(2026, 6, 12, 7, 0, 0, 0, time.UTC)))
	assert.False(t, InWindow(event, time.Date(2026, 6, 12, 5, 59, 0, 0, time.UTC)))
	assert.False(t, InWindow(event, time.Date(2026, 6, 13, 6, 0, 0, 0, time.UTC)))
}
