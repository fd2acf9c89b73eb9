package reservations

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

	Create(ctx context.Context, reservation *Reservation) error
	ListActiveBySeat(ctx context.Context, seatID uuid.UUID) ([]Reservation, error)
	FindActiveForAttendee(ctx context.Context, seatID, attendeeID uuid.UUID) (*Reservation, error)
	LockForAttendee(ctx context.Context, reservationID, attendeeID uuid.UUID) (*Reservation, error)
	// SetStatus moves a reservation out of ACTIVE. It reports false when the
	// row was no longer ACTIVE.
	SetStatus(ctx context.Context, reservationID uuid.UUID, next Status) (bool, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
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

func (r *repository) Create(ctx context.Context, reservation *Reservation) error {
	if err := r.db.WithContext(ctx).Create(reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("Seat is already reserved", apperror.Meta{
				"event_seat_id": reservation.EventSeatID.String(),
			})
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *repository) ListActiveBySeat(ctx context.Context, seatID uuid.UUID) ([]Reservation, error) {
	var reservations []Reservation
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_seat_id = ? AND status = ?", seatID, StatusActive).
		Order("expiration_at DESC").
		Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list seat reservations: %w", err)
	}
	return reservations, nil
}

// FindActiveForAttendee returns nil when the attendee has no ACTIVE hold on the seat.
// Callers decide whether an expired ACTIVE hold still counts.
func (r *repository) FindActiveForAttendee(ctx context.Context, seatID, attendeeID uuid.UUID) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_seat_id = ? AND attendee_id = ? AND status = ?", seatID, attendeeID, StatusActive).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return &reservation, nil
}

func (r *repository) LockForAttendee(ctx context.Context, reservationID, attendeeID uuid.UUID) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND attendee_id = ?", reservationID, attendeeID).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("reservation not found")
		}
		return nil, fmt.Errorf("failed to lock reservation: %w", err)
	}
	return &reservation, nil
}

func (r *repository) SetStatus(ctx context.Context, reservationID uuid.UUID, next Status) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("id = ? AND status = ?", reservationID, StatusActive).
		Update("status", next)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update reservation status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	var reservations []Reservation
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expiration_at <= ?", StatusActive, now).
		Order("expiration_at").
		Limit(limit).
		Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}
	return reservations, nil
}
