package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment records one confirmed external charge. It is written only by
// finalization, after the processor reports success.
type Payment struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AttendeeID              uuid.UUID       `gorm:"type:uuid;not null;index" json:"attendee_id"`
	AttendeeEmail           string          `gorm:"type:varchar(255)" json:"attendee_email,omitempty"`
	EventID                 uuid.UUID       `gorm:"type:uuid;not null;index" json:"event_id"`
	Subtotal                decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount               decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	TotalAmount             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	AmountConfirmedMinor    int64           `gorm:"not null" json:"amount_confirmed_minor"`
	Currency                string          `gorm:"type:varchar(3);not null" json:"currency"`
	TicketQuantity          int             `gorm:"not null" json:"ticket_quantity"`
	ExternalPaymentIntentID string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"external_payment_intent_id"`
	CreatedAt               time.Time       `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AnomalyKind classifies a finalization that could not follow the happy path
type AnomalyKind string

const (
	AnomalyReservationMissing AnomalyKind = "RESERVATION_MISSING"
	AnomalySeatUnavailable    AnomalyKind = "SEAT_UNAVAILABLE"
	AnomalyAmountMismatch     AnomalyKind = "AMOUNT_MISMATCH"
)

// PaymentAnomaly flags a payment for reconciliation
type PaymentAnomaly struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID   uuid.UUID   `gorm:"type:uuid;not null;index" json:"payment_id"`
	EventSeatID *uuid.UUID  `gorm:"type:uuid" json:"event_seat_id,omitempty"`
	Kind        AnomalyKind `gorm:"type:varchar(40);not null;index" json:"kind"`
	Detail      string      `gorm:"type:text" json:"detail"`
	Resolved    bool        `gorm:"not null;default:false;index" json:"resolved"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (PaymentAnomaly) TableName() string {
	return "payment_anomalies"
}

func (a *PaymentAnomaly) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// WebhookEvent is the delivery log of inbound processor events
type WebhookEvent struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(32);not null;uniqueIndex:idx_webhook_provider_event" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_webhook_provider_event" json:"provider_event_id"`
	Type            string     `gorm:"type:varchar(100);not null;index" json:"type"`
	PaymentRef      string     `gorm:"type:varchar(255);index" json:"payment_ref"`
	Deliveries      int        `gorm:"not null;default:1" json:"deliveries"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
