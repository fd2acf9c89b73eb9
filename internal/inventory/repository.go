package inventory

import (
	"context"
	"errors"
	"fmt"

	"ticketflow/internal/shared/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger owns seat status. Every mutating call must run on a transaction
// handle obtained through WithTx; reads lock the seat row they return.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger

	GetEvent(ctx context.Context, eventID uuid.UUID) (*Event, error)
	EnsureEventOnSale(ctx context.Context, eventID uuid.UUID) (*Event, error)

	LockSeat(ctx context.Context, seatID uuid.UUID) (*EventSeat, error)
	LockSeats(ctx context.Context, seatIDs []uuid.UUID) ([]EventSeat, error)
	EnsureSeatBelongsToEvent(ctx context.Context, eventID, seatID uuid.UUID) (*EventSeat, error)
	TransitionSeatStatus(ctx context.Context, seatID uuid.UUID, expected *SeatStatus, next SeatStatus) (*EventSeat, error)

	ListSeatsByEvent(ctx context.Context, eventID uuid.UUID) ([]EventSeat, error)
	CreateEvent(ctx context.Context, event *Event) error
	CreateSeats(ctx context.Context, seats []EventSeat) error
}

type ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	return &ledger{db: tx}
}

func (l *ledger) GetEvent(ctx context.Context, eventID uuid.UUID) (*Event, error) {
	var event Event
	if err := l.db.WithContext(ctx).First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("event not found")
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

func (l *ledger) EnsureEventOnSale(ctx context.Context, eventID uuid.UUID) (*Event, error) {
	event, err := l.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsOnSale() {
		return nil, apperror.Conflict("Event is not on sale", apperror.Meta{
			"event_id":        event.ID.String(),
			"event_status":    event.Status.String(),
			"event_status_id": event.Status.ID(),
			"allowed_status":  EventOnSale.String(),
		})
	}
	return event, nil
}

func (l *ledger) locking() *gorm.DB {
	return l.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (l *ledger) LockSeat(ctx context.Context, seatID uuid.UUID) (*EventSeat, error) {
	var seat EventSeat
	if err := l.locking().WithContext(ctx).First(&seat, "id = ?", seatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound := apperror.NotFound("seat not found")
			notFound.Meta = apperror.Meta{"event_seat_id": seatID.String()}
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to lock seat: %w", err)
	}
	return &seat, nil
}

// LockSeats locks rows in id order so overlapping multi-seat requests cannot deadlock.
// A missing id is NotFound.
func (l *ledger) LockSeats(ctx context.Context, seatIDs []uuid.UUID) ([]EventSeat, error) {
	var seats []EventSeat
	if err := l.locking().WithContext(ctx).
		Where("id IN ?", seatIDs).
		Order("id").
		Find(&seats).Error; err != nil {
		return nil, fmt.Errorf("failed to lock seats: %w", err)
	}

	found := make(map[uuid.UUID]bool, len(seats))
	for _, seat := range seats {
		found[seat.ID] = true
	}
	for _, id := range seatIDs {
		if !found[id] {
			notFound := apperror.NotFound("seat not found")
			notFound.Meta = apperror.Meta{"event_seat_id": id.String()}
			return nil, notFound
		}
	}
	return seats, nil
}

func (l *ledger) EnsureSeatBelongsToEvent(ctx context.Context, eventID, seatID uuid.UUID) (*EventSeat, error) {
	seat, err := l.LockSeat(ctx, seatID)
	if err != nil {
		return nil, err
	}
	if seat.EventID != eventID {
		return nil, apperror.Conflict("Seat does not belong to event", apperror.Meta{
			"event_seat_id":     seat.ID.String(),
			"expected_event_id": eventID.String(),
			"seat_event_id":     seat.EventID.String(),
		})
	}
	return seat, nil
}

func (l *ledger) TransitionSeatStatus(ctx context.Context, seatID uuid.UUID, expected *SeatStatus, next SeatStatus) (*EventSeat, error) {
	if !next.IsValid() {
		return nil, apperror.BadRequest(fmt.Sprintf("unknown seat status: %s", next))
	}

	seat, err := l.LockSeat(ctx, seatID)
	if err != nil {
		return nil, err
	}

	if expected != nil && seat.Status != *expected {
		return nil, apperror.Conflict("Seat is not in the expected status", apperror.Meta{
			"event_seat_id":     seat.ID.String(),
			"current_status":    seat.Status.String(),
			"current_status_id": seat.Status.ID(),
			"allowed_status":    expected.String(),
			"allowed_status_id": expected.ID(),
		})
	}

	if !CanTransition(seat.Status, next) {
		return nil, apperror.Conflict("Illegal seat status transition", apperror.Meta{
			"event_seat_id":     seat.ID.String(),
			"current_status":    seat.Status.String(),
			"current_status_id": seat.Status.ID(),
			"requested_status":  next.String(),
		})
	}

	if err := l.db.WithContext(ctx).Model(seat).Update("status", next).Error; err != nil {
		return nil, fmt.Errorf("failed to update seat status: %w", err)
	}
	seat.Status = next
	return seat, nil
}

func (l *ledger) ListSeatsByEvent(ctx context.Context, eventID uuid.UUID) ([]EventSeat, error) {
	var seats []EventSeat
	if err := l.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("section, row_label, number").
		Find(&seats).Error; err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	return seats, nil
}

func (l *ledger) CreateEvent(ctx context.Context, event *Event) error {
	if err := l.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (l *ledger) CreateSeats(ctx context.Context, seats []EventSeat) error {
	if len(seats) == 0 {
		return nil
	}
	if err := l.db.WithContext(ctx).CreateInBatches(&seats, 200).Error; err != nil {
		return fmt.Errorf("failed to create seats: %w", err)
	}
	return nil
}
