package checkin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, attempt *CheckInAttempt) error
	FirstOK(ctx context.Context, qrID uuid.UUID) (*CheckInAttempt, error)
	ListByQr(ctx context.Context, qrID uuid.UUID) ([]CheckInAttempt, error)
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

func (r *repository) Append(ctx context.Context, attempt *CheckInAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record check-in attempt: %w", err)
	}
	return nil
}

// FirstOK returns nil when the token has never admitted anyone
func (r *repository) FirstOK(ctx context.Context, qrID uuid.UUID) (*CheckInAttempt, error) {
	var attempt CheckInAttempt
	err := r.db.WithContext(ctx).
		Where("ticket_qr_id = ? AND outcome = ?", qrID, OutcomeOK).
		Order("scanned_at, created_at").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find check-in: %w", err)
	}
	return &attempt, nil
}

func (r *repository) ListByQr(ctx context.Context, qrID uuid.UUID) ([]CheckInAttempt, error) {
	var attempts []CheckInAttempt
	if err := r.db.WithContext(ctx).
		Where("ticket_qr_id = ?", qrID).
		Order("scanned_at, created_at").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list check-in attempts: %w", err)
	}
	return attempts, nil
}
