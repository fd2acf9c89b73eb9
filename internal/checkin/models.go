package checkin

import (
	"time"

	"ticketflow/internal/shared/enum"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeOK            Outcome = "OK"
	OutcomeDuplicate     Outcome = "DUPLICATE"
	OutcomeInvalid       Outcome = "INVALID"
	OutcomeOutsideWindow Outcome = "OUTSIDE_WINDOW"
)

var outcomes = enum.NewSet("check-in outcome", OutcomeOK, OutcomeDuplicate, OutcomeInvalid, OutcomeOutsideWindow)

func ParseOutcome(raw any) (Outcome, error) {
	return outcomes.Parse(raw)
}

func (o Outcome) ID() int        { return outcomes.ID(o) }
func (o Outcome) IsValid() bool  { return outcomes.Valid(o) }
func (o Outcome) String() string { return string(o) }

// CheckInAttempt is the append-only scan log. The earliest OK row for a QR
// token is the one that admitted the ticket.
type CheckInAttempt struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TicketQrID     *uuid.UUID `gorm:"type:uuid;index:idx_checkin_qr_outcome" json:"ticket_qr_id,omitempty"`
	TicketID       *uuid.UUID `gorm:"type:uuid;index" json:"ticket_id,omitempty"`
	PresentedToken string     `gorm:"type:varchar(128)" json:"-"`
	Outcome        Outcome    `gorm:"type:varchar(20);not null;index:idx_checkin_qr_outcome" json:"outcome"`
	ScannerID      string     `gorm:"type:varchar(100);not null;index" json:"scanner_id"`
	ScannedAt      time.Time  `gorm:"not null;index" json:"scanned_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (CheckInAttempt) TableName() string {
	return "check_in_attempts"
}

func (a *CheckInAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type CheckInRequest struct {
	Token     string `validate:"required,max=128"`
	ScannerID string `validate:"required,max=100"`
}

type Result struct {
	Outcome     Outcome    `json:"outcome"`
	OutcomeID   int        `json:"outcome_id"`
	TicketID    *uuid.UUID `json:"ticket_id,omitempty"`
	SeatLabel   string     `json:"seat_label,omitempty"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	AttemptID   uuid.UUID  `json:"attempt_id"`
	Reason      string     `json:"reason,omitempty"`
}
