package inventory

import (
	"context"
	"time"

	"ticketflow/internal/shared/constants"
	"ticketflow/pkg/cache"
	"ticketflow/pkg/logger"

	"github.com/google/uuid"
)

// Service serves the seat map read model
type Service interface {
	SeatAvailability(ctx context.Context, eventID uuid.UUID) (*SeatAvailability, error)
	InvalidateAvailability(ctx context.Context, eventID uuid.UUID)
}

type service struct {
	ledger Ledger
	cache  cache.Service
	ttl    time.Duration
	log    *logger.Logger
}

// NewService builds the read service. cacheSvc may be nil.
func NewService(ledger Ledger, cacheSvc cache.Service, ttl time.Duration, log *logger.Logger) Service {
	return &service{ledger: ledger, cache: cacheSvc, ttl: ttl, log: log}
}

func (s *service) SeatAvailability(ctx context.Context, eventID uuid.UUID) (*SeatAvailability, error) {
	if s.cache == nil {
		return s.load(ctx, eventID)
	}

	var availability SeatAvailability
	err := s.cache.GetOrSet(ctx, constants.SeatAvailabilityKey(eventID.String()), s.ttl, func() (interface{}, error) {
		return s.load(ctx, eventID)
	}, &availability)
	if err != nil {
		return nil, err
	}
	return &availability, nil
}

func (s *service) load(ctx context.Context, eventID uuid.UUID) (*SeatAvailability, error) {
	if _, err := s.ledger.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	seats, err := s.ledger.ListSeatsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	availability := &SeatAvailability{
		EventID: eventID,
		Seats:   make([]SeatSnapshot, 0, len(seats)),
		AsOf:    time.Now().UTC(),
	}
	for _, seat := range seats {
		if seat.Status == SeatAvailable {
			availability.Available++
		}
		availability.Seats = append(availability.Seats, SeatSnapshot{
			ID:            seat.ID,
			Label:         seat.Label(),
			CategoryLabel: seat.CategoryLabel,
			Price:         seat.BasePrice,
			Status:        seat.Status,
			StatusID:      seat.Status.ID(),
		})
	}
	return availability, nil
}

func (s *service) InvalidateAvailability(ctx context.Context, eventID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, constants.SeatAvailabilityKey(eventID.String())); err != nil {
		s.log.WarnContext(ctx, "failed to invalidate seat availability",
			"event_id", eventID.String(), "error", err.Error())
	}
}
