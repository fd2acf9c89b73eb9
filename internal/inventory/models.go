package inventory

import (
	"fmt"
	"time"
	_ "time/tzdata" // event zones resolve on hosts without a zoneinfo database

	"ticketflow/internal/shared/enum"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeatStatus is the seat-level sale state owned by the ledger
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatReserved  SeatStatus = "RESERVED"
	SeatSold      SeatStatus = "SOLD"
	SeatBlocked   SeatStatus = "BLOCKED"
)

var seatStatuses = enum.NewSet("seat status", SeatAvailable, SeatReserved, SeatSold, SeatBlocked)

// ParseSeatStatus accepts a numeric id or a code
func ParseSeatStatus(raw any) (SeatStatus, error) {
	return seatStatuses.Parse(raw)
}

func (s SeatStatus) ID() int       { return seatStatuses.ID(s) }
func (s SeatStatus) IsValid() bool { return seatStatuses.Valid(s) }
func (s SeatStatus) String() string {
	return string(s)
}

// EventStatus is the sales lifecycle of an event
type EventStatus string

const (
	EventDraft  EventStatus = "DRAFT"
	EventOnSale EventStatus = "ON_SALE"
	EventPaused EventStatus = "PAUSED"
	EventClosed EventStatus = "CLOSED"
)

var eventStatuses = enum.NewSet("event status", EventDraft, EventOnSale, EventPaused, EventClosed)

func ParseEventStatus(raw any) (EventStatus, error) {
	return eventStatuses.Parse(raw)
}

func (s EventStatus) ID() int       { return eventStatuses.ID(s) }
func (s EventStatus) IsValid() bool { return eventStatuses.Valid(s) }
func (s EventStatus) String() string {
	return string(s)
}

// Event is the sellable occurrence seats belong to
type Event struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string      `gorm:"type:varchar(255);not null" json:"name"`
	Status    EventStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	StartsAt  time.Time   `gorm:"not null;index" json:"starts_at"`
	TimeZone  string      `gorm:"type:varchar(64);not null;default:'UTC'" json:"time_zone"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.TimeZone == "" {
		e.TimeZone = "UTC"
	}
	return nil
}

func (e *Event) IsOnSale() bool {
	return e.Status == EventOnSale
}

// Location resolves the event's time zone, falling back to UTC
func (e *Event) Location() *time.Location {
	if loc, err := time.LoadLocation(e.TimeZone); err == nil {
		return loc
	}
	return time.UTC
}

// EventSeat is one physical seat offered for one event
type EventSeat struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EventID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_event_seat" json:"event_id"`
	SeatID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_event_seat" json:"seat_id"`
	Section       string          `gorm:"type:varchar(50);not null" json:"section"`
	Row           string          `gorm:"column:row_label;type:varchar(10);not null" json:"row"`
	Number        string          `gorm:"type:varchar(10);not null" json:"number"`
	CategoryLabel string          `gorm:"type:varchar(100)" json:"category_label"`
	BasePrice     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base_price"`
	Status        SeatStatus      `gorm:"type:varchar(20);not null;default:'AVAILABLE';index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (EventSeat) TableName() string {
	return "event_seats"
}

func (s *EventSeat) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SeatID == uuid.Nil {
		s.SeatID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SeatAvailable
	}
	return nil
}

// Label renders the seat position for tickets, e.g. "A-3-12"
func (s *EventSeat) Label() string {
	return fmt.Sprintf("%s-%s-%s", s.Section, s.Row, s.Number)
}

// legalTransitions lists every seat status change the ledger accepts
var legalTransitions = map[SeatStatus][]SeatStatus{
	SeatAvailable: {SeatReserved},
	SeatReserved:  {SeatAvailable, SeatSold},
	SeatSold:      {SeatAvailable},
}

// CanTransition reports whether from -> to is a legal ledger move
func CanTransition(from, to SeatStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SeatAvailability is the public read model of an event's seat map
type SeatAvailability struct {
	EventID   uuid.UUID      `json:"event_id"`
	Available int            `json:"available"`
	Seats     []SeatSnapshot `json:"seats"`
	AsOf      time.Time      `json:"as_of"`
}

type SeatSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	Label         string          `json:"label"`
	CategoryLabel string          `json:"category_label"`
	Price         decimal.Decimal `json:"price"`
	Status        SeatStatus      `json:"status"`
	StatusID      int             `json:"status_id"`
}
