package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketflow/internal/shared/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetPolicy(ctx context.Context, eventID uuid.UUID) (*RefundPolicy, error)
	SavePolicy(ctx context.Context, policy *RefundPolicy) error

	Create(ctx context.Context, refund *Refund) error
	FindByTicket(ctx context.Context, ticketID uuid.UUID) (*Refund, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Refund, error)
	Update(ctx context.Context, refund *Refund) error
	ListPending(ctx context.Context, attemptedBefore time.Time, limit int) ([]Refund, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// GetPolicy falls back to the default policy when the event has none
func (r *repository) GetPolicy(ctx context.Context, eventID uuid.UUID) (*RefundPolicy, error) {
	var policy RefundPolicy
	err := r.db.WithContext(ctx).First(&policy, "event_id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultPolicy(eventID), nil
		}
		return nil, fmt.Errorf("failed to get refund policy: %w", err)
	}
	return &policy, nil
}

func (r *repository) SavePolicy(ctx context.Context, policy *RefundPolicy) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "allow_refunds", "deadline_hours", "fee_type", "fee_amount", "updated_at"}),
	}).Create(policy).Error
	if err != nil {
		return fmt.Errorf("failed to save refund policy: %w", err)
	}
	return nil
}

func (r *repository) Create(ctx context.Context, refund *Refund) error {
	if err := r.db.WithContext(ctx).Create(refund).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("Ticket already has a refund", apperror.Meta{
				"ticket_id": refund.TicketID.String(),
			})
		}
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

// FindByTicket returns nil when the ticket was never refunded
func (r *repository) FindByTicket(ctx context.Context, ticketID uuid.UUID) (*Refund, error) {
	var refund Refund
	if err := r.db.WithContext(ctx).First(&refund, "ticket_id = ?", ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find refund: %w", err)
	}
	return &refund, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*Refund, error) {
	var refund Refund
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&refund, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("refund not found")
		}
		return nil, fmt.Errorf("failed to lock refund: %w", err)
	}
	return &refund, nil
}

func (r *repository) Update(ctx context.Context, refund *Refund) error {
	if err := r.db.WithContext(ctx).Save(refund).Error; err != nil {
		return fmt.Errorf("failed to update refund: %w", err)
	}
	return nil
}

// ListPending returns REQUESTED and APPROVED refunds last attempted before attemptedBefore, oldest first
func (r *repository) ListPending(ctx context.Context, attemptedBefore time.Time, limit int) ([]Refund, error) {
	var refunds []Refund
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND last_attempt_at < ?", PendingStatuses, attemptedBefore).
		Order("last_attempt_at").
		Limit(limit).
		Find(&refunds).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending refunds: %w", err)
	}
	return refunds, nil
}
