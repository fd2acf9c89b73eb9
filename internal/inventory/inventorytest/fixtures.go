// Package inventorytest seeds events and seats for tests in other packages.
package inventorytest

import (
	"fmt"
	"testing"
	"time"

	"ticketflow/internal/inventory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Models lists the tables the fixtures need
func Models() []interface{} {
	return []interface{}{&inventory.Event{}, &inventory.EventSeat{}}
}

// SeedEvent creates an event starting at startsAt with n AVAILABLE seats priced at price.
func SeedEvent(t *testing.T, db *gorm.DB, status inventory.EventStatus, startsAt time.Time, n int, price string) (*inventory.Event, []inventory.EventSeat) {
	t.Helper()

	event := &inventory.Event{
		Name:     "Test Event",
		Status:   status,
		StartsAt: startsAt,
		TimeZone: "UTC",
	}
	require.NoError(t, db.Create(event).Error)

	seats := make([]inventory.EventSeat, n)
	for i := range seats {
		seats[i] = inventory.EventSeat{
			EventID:       event.ID,
			Section:       "A",
			Row:           "1",
			Number:        fmt.Sprintf("%02d", i+1),
			CategoryLabel: "General",
			BasePrice:     decimal.RequireFromString(price),
			Status:        inventory.SeatAvailable,
		}
	}
	if n > 0 {
		require.NoError(t, db.Create(&seats).Error)
	}
	return event, seats
}

// SetSeatStatus forces a seat status, bypassing the ledger
func SetSeatStatus(t *testing.T, db *gorm.DB, seat inventory.EventSeat, status inventory.SeatStatus) {
	t.Helper()
	require.NoError(t, db.Model(&inventory.EventSeat{}).Where("id = ?", seat.ID).Update("status", status).Error)
}

// SeatStatus reads the stored status of a seat
func SeatStatus(t *testing.T, db *gorm.DB, seat inventory.EventSeat) inventory.SeatStatus {
	t.Helper()
	var stored inventory.EventSeat
	require.NoError(t, db.First(&stored, "id = ?", seat.ID).Error)
	return stored.Status
}
