package tickets

import (
	"time"

	"ticketflow/internal/shared/enum"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusSold      Status = "SOLD"
	StatusCheckedIn Status = "CHECKED_IN"
	StatusRefunded  Status = "REFUNDED"
	StatusCanceled  Status = "CANCELED"
)

var statuses = enum.NewSet("ticket status", StatusSold, StatusCheckedIn, StatusRefunded, StatusCanceled)

func ParseStatus(raw any) (Status, error) {
	return statuses.Parse(raw)
}

func (s Status) ID() int        { return statuses.ID(s) }
func (s Status) IsValid() bool  { return statuses.Valid(s) }
func (s Status) String() string { return string(s) }

// IsBlocking reports whether the ticket still occupies its seat
func (s Status) IsBlocking() bool {
	return s == StatusSold || s == StatusCheckedIn
}

// BlockingStatuses are the statuses that keep a seat off sale
var BlockingStatuses = []Status{StatusSold, StatusCheckedIn}

var ticketTransitions = map[Status][]Status{
	StatusSold: {StatusCheckedIn, StatusRefunded, StatusCanceled},
}

func CanTransition(from, to Status) bool {
	for _, allowed := range ticketTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Ticket is issued once per purchased seat. At most one blocking ticket may
// reference a seat; refunded tickets stay for history.
type Ticket struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"payment_id"`
	AttendeeID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"attendee_id"`
	EventID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"event_id"`
	EventSeatID   uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_ticket_blocking_seat,where:status <> 'REFUNDED' AND status <> 'CANCELED'" json:"event_seat_id"`
	CategoryLabel string          `gorm:"type:varchar(100)" json:"category_label"`
	SeatLabel     string          `gorm:"type:varchar(50)" json:"seat_label"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Status        Status          `gorm:"type:varchar(20);not null;default:'SOLD';index" json:"status"`
	CheckedInAt   *time.Time      `json:"checked_in_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	QrToken *QrToken `gorm:"foreignKey:TicketID" json:"qr_token,omitempty"`
}

func (Ticket) TableName() string {
	return "tickets"
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusSold
	}
	return nil
}

// QrToken is the single entry credential minted with a ticket
type QrToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"ticket_id"`
	Token     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

func (QrToken) TableName() string {
	return "ticket_qr_tokens"
}

func (q *QrToken) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
