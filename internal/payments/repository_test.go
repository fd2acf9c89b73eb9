package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketflow/internal/shared/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_PaymentUniquePerIntent(t *testing.T) {
	db := testutil.OpenDB(t, &Payment{}, &PaymentAnomaly{}, &WebhookEvent{})
	repo := NewRepository(db)
	ctx := context.Background()

	newPayment := func() *Payment {
		return &Payment{
			AttendeeID:              uuid.New(),
			EventID:                 uuid.New(),
			Subtotal:                decimal.RequireFromString("100.00"),
			TaxAmount:               decimal.RequireFromString("16.00"),
			TotalAmount:             decimal.RequireFromString("116.00"),
			AmountConfirmedMinor:    11600,
			Currency:                "mxn",
			TicketQuantity:          1,
			ExternalPaymentIntentID: "pi_1",
		}
	}

	missing, err := repo.FindByExternalID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Create(ctx, newPayment()))
	assert.Error(t, repo.Create(ctx, newPayment()))

	found, err := repo.FindByExternalID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, decimal.RequireFromString("116").Equal(found.TotalAmount))
}

func TestRepository_RecordWebhookCountsDeliveries(t *testing.T) {
	db := testutil.OpenDB(t, &Payment{}, &PaymentAnomaly{}, &WebhookEvent{})
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordWebhook(ctx, &WebhookEvent{
			Provider:        "stripe",
			ProviderEventID: "evt_1",
			Type:            EventPaymentSucceeded,
			PaymentRef:      "pi_1",
		}))
	}

	var stored WebhookEvent
	require.NoError(t, db.First(&stored, "provider_event_id = ?", "evt_1").Error)
	assert.Equal(t, 3, stored.Deliveries)
	assert.Nil(t, stored.ProcessedAt)

	require.NoError(t, repo.MarkWebhookProcessed(ctx, "stripe", "evt_1", time.Now(), errors.New("seat locked")))
	require.NoError(t, db.First(&stored, "provider_event_id = ?", "evt_1").Error)
	assert.Equal(t, "seat locked", stored.LastError)

	require.NoError(t, repo.MarkWebhookProcessed(ctx, "stripe", "evt_1", time.Now(), nil))
	require.NoError(t, db.First(&stored, "provider_event_id = ?", "evt_1").Error)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.LastError)
}
