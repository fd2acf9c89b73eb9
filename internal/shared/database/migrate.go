package database

import (
	"ticketflow/internal/checkin"
	"ticketflow/internal/inventory"
	"ticketflow/internal/payments"
	"ticketflow/internal/refunds"
	"ticketflow/internal/reservations"
	"ticketflow/internal/tickets"

	"gorm.io/gorm"
)

// Models lists every persisted type in migration order
func Models() []interface{} {
	return []interface{}{
		&inventory.Event{},
		&inventory.EventSeat{},
		&reservations.Reservation{},
		&payments.Payment{},
		&payments.PaymentAnomaly{},
		&payments.WebhookEvent{},
		&tickets.Ticket{},
		&tickets.QrToken{},
		&refunds.RefundPolicy{},
		&refunds.Refund{},
		&checkin.CheckInAttempt{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
