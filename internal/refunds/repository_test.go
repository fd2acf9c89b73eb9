package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPending_SelectsOnLastAttempt(t *testing.T) {
	f := setup(t)
	attendee := uuid.New()
	sold := f.sell(t, attendee)

	create := func(ticketIdx int, status Status, attemptedAt time.Time) *Refund {
		refund := &Refund{
			TicketID:      sold[ticketIdx].ID,
			PaymentID:     sold[ticketIdx].PaymentID,
			AttendeeID:    attendee,
			RefundAmount:  decimal.RequireFromString("290.00"),
			Currency:      "mxn",
			Status:        status,
			PolicyCode:    DefaultPolicyCode,
			RequestedAt:   attemptedAt,
			LastAttemptAt: attemptedAt,
		}
		require.NoError(t, f.repo.Create(context.Background(), refund))
		return refund
	}

	// updated_at is stamped from the wall clock, far after baseTime
	stale := create(0, StatusApproved, baseTime.Add(-time.Hour))
	create(1, StatusRequested, baseTime)

	pending, err := f.repo.ListPending(context.Background(), baseTime.Add(-10*time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)

	pending, err = f.repo.ListPending(context.Background(), baseTime.Add(time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, stale.ID, pending[0].ID, "oldest attempt first")

	stale.Status = StatusProcessed
	require.NoError(t, f.repo.Update(context.Background(), stale))
	pending, err = f.repo.ListPending(context.Background(), baseTime.Add(time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, stale.ID, pending[0].ID)
}
