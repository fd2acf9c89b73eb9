package refunds

import (
	"time"

	"ticketflow/internal/shared/enum"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusProcessed Status = "PROCESSED"
	StatusRejected  Status = "REJECTED"
)

var statuses = enum.NewSet("refund status", StatusRequested, StatusApproved, StatusProcessed, StatusRejected)

func ParseStatus(raw any) (Status, error) {
	return statuses.Parse(raw)
}

func (s Status) ID() int        { return statuses.ID(s) }
func (s Status) IsValid() bool  { return statuses.Valid(s) }
func (s Status) String() string { return string(s) }

// IsTerminal reports whether reconciliation is finished with the refund
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusRejected
}

// PendingStatuses still need an answer from the processor
var PendingStatuses = []Status{StatusRequested, StatusApproved}

// MapProcessorStatus folds the processor's refund states into ours.
// Anything unrecognized stays pending so reconciliation asks again.
func MapProcessorStatus(status string) Status {
	switch status {
	case "succeeded":
		return StatusProcessed
	case "failed", "canceled":
		return StatusRejected
	default:
		return StatusApproved
	}
}

type FeeType string

const (
	FeeNone       FeeType = "NONE"
	FeeFixed      FeeType = "FIXED"
	FeePercentage FeeType = "PERCENTAGE"
)

var feeTypes = enum.NewSet("fee type", FeeNone, FeeFixed, FeePercentage)

func ParseFeeType(raw any) (FeeType, error) {
	return feeTypes.Parse(raw)
}

const DefaultPolicyCode = "DEFAULT"

// RefundPolicy is the per-event refund window and fee. Events without one
// use DefaultPolicy.
type RefundPolicy struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EventID       uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"event_id"`
	Code          string          `gorm:"type:varchar(50);not null" json:"code"`
	AllowRefunds  bool            `gorm:"not null;default:true" json:"allow_refunds"`
	DeadlineHours int             `gorm:"not null;default:0" json:"deadline_hours"`
	FeeType       FeeType         `gorm:"type:varchar(20);not null;default:'NONE'" json:"fee_type"`
	FeeAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"fee_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (RefundPolicy) TableName() string {
	return "refund_policies"
}

func (p *RefundPolicy) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.FeeType == "" {
		p.FeeType = FeeNone
	}
	return nil
}

func DefaultPolicy(eventID uuid.UUID) *RefundPolicy {
	return &RefundPolicy{
		EventID:      eventID,
		Code:         DefaultPolicyCode,
		AllowRefunds: true,
		FeeType:      FeeNone,
		FeeAmount:    decimal.Zero,
	}
}

// Deadline is the last instant a refund may be requested
func (p *RefundPolicy) Deadline(startsAt time.Time) time.Time {
	return startsAt.Add(-time.Duration(p.DeadlineHours) * time.Hour)
}

// Fee is never more than the amount it is charged on
func (p *RefundPolicy) Fee(amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch p.FeeType {
	case FeeFixed:
		fee = p.FeeAmount
	case FeePercentage:
		fee = amount.Mul(p.FeeAmount).Div(decimal.NewFromInt(100))
	default:
		fee = decimal.Zero
	}
	fee = fee.Round(2)
	if fee.GreaterThan(amount) {
		return amount
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}

// Refund is the single refund attempt allowed per ticket
type Refund struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"ticket_id"`
	PaymentID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"payment_id"`
	AttendeeID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"attendee_id"`
	RefundAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"refund_amount"`
	FeeAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"fee_amount"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`
	Reason           string          `gorm:"type:text" json:"reason"`
	Status           Status          `gorm:"type:varchar(20);not null;default:'REQUESTED';index" json:"status"`
	ExternalRefundID *string         `gorm:"type:varchar(255)" json:"external_refund_id,omitempty"`
	PolicyCode       string          `gorm:"type:varchar(50);not null" json:"policy_code"`
	FailureReason    string          `gorm:"type:text" json:"failure_reason,omitempty"`
	RequestedAt      time.Time       `gorm:"not null" json:"requested_at"`
	LastAttemptAt    time.Time       `gorm:"not null;index" json:"last_attempt_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Refund) TableName() string {
	return "refunds"
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusRequested
	}
	return nil
}

// IdempotencyKey ties every processor call for this refund together
func (r *Refund) IdempotencyKey() string {
	return "refund_" + r.ID.String()
}

type RefundRequest struct {
	AttendeeID uuid.UUID `validate:"required"`
	TicketID   uuid.UUID `validate:"required"`
	Reason     string    `validate:"max=500"`
}
