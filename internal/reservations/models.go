package reservations

import (
	"time"

	"ticketflow/internal/shared/enum"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusConverted Status = "CONVERTED"
	StatusCanceled  Status = "CANCELED"
)

var statuses = enum.NewSet("reservation status", StatusActive, StatusExpired, StatusConverted, StatusCanceled)

func ParseStatus(raw any) (Status, error) {
	return statuses.Parse(raw)
}

func (s Status) ID() int        { return statuses.ID(s) }
func (s Status) IsValid() bool  { return statuses.Valid(s) }
func (s Status) String() string { return string(s) }

// Reservation is a time-boxed claim by one attendee on one event seat.
// The partial unique index keeps at most one ACTIVE row per seat; stale
// ACTIVE rows are expired before a new hold is written.
type Reservation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AttendeeID   uuid.UUID `gorm:"type:uuid;not null;index" json:"attendee_id"`
	EventID      uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	EventSeatID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reservation_active_seat,where:status = 'ACTIVE'" json:"event_seat_id"`
	ExpirationAt time.Time `gorm:"not null;index" json:"expiration_at"`
	Status       Status    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Reservation) TableName() string {
	return "reservations"
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	return nil
}

// IsLive reports an ACTIVE hold that has not yet expired at now
func (r *Reservation) IsLive(now time.Time) bool {
	return r.Status == StatusActive && now.Before(r.ExpirationAt)
}

// HoldRequest is an all-or-nothing hold on seats of one event
type HoldRequest struct {
	AttendeeID      uuid.UUID   `validate:"required"`
	EventID         uuid.UUID   `validate:"required"`
	SeatIDs         []uuid.UUID `validate:"required,min=1,dive,required"`
	RequestedExpiry *time.Time
}

type HoldResult struct {
	EventID      uuid.UUID     `json:"event_id"`
	Reservations []Reservation `json:"reservations"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

func (h *HoldResult) ReservationIDs() []string {
	ids := make([]string, len(h.Reservations))
	for i, r := range h.Reservations {
		ids[i] = r.ID.String()
	}
	return ids
}
