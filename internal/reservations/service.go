package reservations

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/validation"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AvailabilityInvalidator drops cached seat maps after a commit
type AvailabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context, eventID uuid.UUID)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateAvailability(context.Context, uuid.UUID) {}

type Service interface {
	CreateReservation(ctx context.Context, attendeeID, seatID uuid.UUID, requestedExpiry *time.Time) (*Reservation, error)
	HoldSeats(ctx context.Context, req HoldRequest) (*HoldResult, error)
	ReleaseReservation(ctx context.Context, attendeeID, reservationID uuid.UUID) (*Reservation, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
}

type Options struct {
	MaxHold          time.Duration
	MaxSeatsPerOrder int
}

type service struct {
	db           *gorm.DB
	repo         Repository
	ledger       inventory.Ledger
	tickets      tickets.Repository
	availability AvailabilityInvalidator
	clock        clock.Clock
	log          *logger.Logger
	opts         Options
}

func NewService(db *gorm.DB, repo Repository, ledger inventory.Ledger, ticketRepo tickets.Repository,
	availability AvailabilityInvalidator, clk clock.Clock, log *logger.Logger, opts Options) Service {
	if availability == nil {
		availability = noopInvalidator{}
	}
	return &service{
		db:           db,
		repo:         repo,
		ledger:       ledger,
		tickets:      ticketRepo,
		availability: availability,
		clock:        clk,
		log:          log,
		opts:         opts,
	}
}

// EffectiveExpiry clamps a requested expiry to now+maxHold. A missing or
// past request gets the full ceiling.
func EffectiveExpiry(now time.Time, requested *time.Time, maxHold time.Duration) time.Time {
	ceiling := now.Add(maxHold)
	if requested == nil || !requested.After(now) || requested.After(ceiling) {
		return ceiling
	}
	return requested.UTC()
}

// txScope bundles the repositories bound to one transaction
type txScope struct {
	reservations Repository
	ledger       inventory.Ledger
	tickets      tickets.Repository
}

func (s *service) scope(tx *gorm.DB) txScope {
	return txScope{
		reservations: s.repo.WithTx(tx),
		ledger:       s.ledger.WithTx(tx),
		tickets:      s.tickets.WithTx(tx),
	}
}

func (s *service) CreateReservation(ctx context.Context, attendeeID, seatID uuid.UUID, requestedExpiry *time.Time) (*Reservation, error) {
	if attendeeID == uuid.Nil || seatID == uuid.Nil {
		return nil, apperror.BadRequest("attendee id and seat id are required")
	}

	now := s.clock.Now()
	expiry := EffectiveExpiry(now, requestedExpiry, s.opts.MaxHold)

	var created *Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := s.scope(tx)

		seat, err := sc.ledger.LockSeat(ctx, seatID)
		if err != nil {
			return err
		}
		if _, err := sc.ledger.EnsureEventOnSale(ctx, seat.EventID); err != nil {
			return err
		}

		created, err = s.holdLocked(ctx, sc, attendeeID, seat, expiry, now)
		return err
	})
	if err != nil {
		s.recordFailure(ctx, attendeeID, seatID, err)
		return nil, err
	}

	metrics.HoldAttempt("success")
	s.availability.InvalidateAvailability(ctx, created.EventID)
	s.log.LogSeatsHeld(ctx, attendeeID.String(), created.EventID.String(), []string{created.ID.String()}, created.ExpirationAt)
	return created, nil
}

func (s *service) HoldSeats(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if s.opts.MaxSeatsPerOrder > 0 && len(req.SeatIDs) > s.opts.MaxSeatsPerOrder {
		return nil, apperror.BadRequest(fmt.Sprintf("at most %d seats per hold", s.opts.MaxSeatsPerOrder))
	}
	seatIDs, err := sortedUnique(req.SeatIDs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiry := EffectiveExpiry(now, req.RequestedExpiry, s.opts.MaxHold)
	result := &HoldResult{EventID: req.EventID, ExpiresAt: expiry}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := s.scope(tx)

		if _, err := sc.ledger.EnsureEventOnSale(ctx, req.EventID); err != nil {
			return err
		}
		if _, err := sc.ledger.LockSeats(ctx, seatIDs); err != nil {
			return err
		}

		for _, seatID := range seatIDs {
			seat, err := sc.ledger.EnsureSeatBelongsToEvent(ctx, req.EventID, seatID)
			if err != nil {
				return err
			}
			reservation, err := s.holdLocked(ctx, sc, req.AttendeeID, seat, expiry, now)
			if err != nil {
				return err
			}
			result.Reservations = append(result.Reservations, *reservation)
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, req.AttendeeID, uuid.Nil, err)
		return nil, err
	}

	metrics.HoldAttempt("success")
	s.availability.InvalidateAvailability(ctx, req.EventID)
	s.log.LogSeatsHeld(ctx, req.AttendeeID.String(), req.EventID.String(), result.ReservationIDs(), expiry)
	return result, nil
}

// holdLocked places a hold on a seat whose row is already locked by the caller's transaction.
func (s *service) holdLocked(ctx context.Context, sc txScope, attendeeID uuid.UUID, seat *inventory.EventSeat, expiry, now time.Time) (*Reservation, error) {
	active, err := sc.reservations.ListActiveBySeat(ctx, seat.ID)
	if err != nil {
		return nil, err
	}
	for _, existing := range active {
		if existing.IsLive(now) {
			return nil, apperror.Conflict("Seat is already reserved", apperror.Meta{
				"event_seat_id":           seat.ID.String(),
				"reservation_id":          existing.ID.String(),
				"expires_at":              existing.ExpirationAt,
				"reserved_by_attendee_id": existing.AttendeeID.String(),
				"current_attendee_id":     attendeeID.String(),
			})
		}
		if _, err := sc.reservations.SetStatus(ctx, existing.ID, StatusExpired); err != nil {
			return nil, err
		}
	}

	ticket, err := sc.tickets.FindBlockingBySeat(ctx, seat.ID)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		return nil, apperror.Conflict("Seat already has a ticket", apperror.Meta{
			"event_seat_id":    seat.ID.String(),
			"ticket_id":        ticket.ID.String(),
			"ticket_status":    ticket.Status.String(),
			"ticket_status_id": ticket.Status.ID(),
		})
	}

	// No live hold and no ticket: a RESERVED seat is stale.
	if seat.Status == inventory.SeatReserved {
		reserved := inventory.SeatReserved
		if _, err := sc.ledger.TransitionSeatStatus(ctx, seat.ID, &reserved, inventory.SeatAvailable); err != nil {
			return nil, err
		}
		metrics.SeatSelfHealed()
		s.log.InfoContext(ctx, "released stale seat hold", "event_seat_id", seat.ID.String())
	}

	available := inventory.SeatAvailable
	if _, err := sc.ledger.TransitionSeatStatus(ctx, seat.ID, &available, inventory.SeatReserved); err != nil {
		return nil, err
	}

	reservation := &Reservation{
		AttendeeID:   attendeeID,
		EventID:      seat.EventID,
		EventSeatID:  seat.ID,
		ExpirationAt: expiry,
		Status:       StatusActive,
	}
	if err := sc.reservations.Create(ctx, reservation); err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) ReleaseReservation(ctx context.Context, attendeeID, reservationID uuid.UUID) (*Reservation, error) {
	var released *Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := s.scope(tx)

		reservation, err := sc.reservations.LockForAttendee(ctx, reservationID, attendeeID)
		if err != nil {
			return err
		}
		if reservation.Status != StatusActive {
			return apperror.Conflict("Reservation is no longer active", apperror.Meta{
				"reservation_id":        reservation.ID.String(),
				"reservation_status":    reservation.Status.String(),
				"reservation_status_id": reservation.Status.ID(),
			})
		}

		if _, err := sc.reservations.SetStatus(ctx, reservation.ID, StatusCanceled); err != nil {
			return err
		}
		reserved := inventory.SeatReserved
		if _, err := sc.ledger.TransitionSeatStatus(ctx, reservation.EventSeatID, &reserved, inventory.SeatAvailable); err != nil {
			return err
		}

		reservation.Status = StatusCanceled
		released = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.availability.InvalidateAvailability(ctx, released.EventID)
	return released, nil
}

// ExpireStale expires overdue holds and frees their seats, one seat per transaction.
func (s *service) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	overdue, err := s.repo.ListExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	events := make(map[uuid.UUID]struct{})
	for _, candidate := range overdue {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		changed := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sc := s.scope(tx)

			seat, err := sc.ledger.LockSeat(ctx, candidate.EventSeatID)
			if err != nil {
				return err
			}
			ok, err := sc.reservations.SetStatus(ctx, candidate.ID, StatusExpired)
			if err != nil || !ok {
				return err
			}
			changed = true

			if seat.Status != inventory.SeatReserved {
				return nil
			}
			remaining, err := sc.reservations.ListActiveBySeat(ctx, seat.ID)
			if err != nil {
				return err
			}
			for _, other := range remaining {
				if other.IsLive(now) {
					return nil
				}
			}
			reserved := inventory.SeatReserved
			_, err = sc.ledger.TransitionSeatStatus(ctx, seat.ID, &reserved, inventory.SeatAvailable)
			return err
		})
		if err != nil {
			s.log.ErrorContext(ctx, "failed to expire reservation",
				"reservation_id", candidate.ID.String(), "error", err.Error())
			continue
		}
		if changed {
			expired++
			events[candidate.EventID] = struct{}{}
		}
	}

	for eventID := range events {
		s.availability.InvalidateAvailability(ctx, eventID)
	}
	return expired, nil
}

func (s *service) recordFailure(ctx context.Context, attendeeID, seatID uuid.UUID, err error) {
	kind := apperror.KindOf(err)
	switch kind {
	case apperror.KindConflict:
		metrics.HoldAttempt("conflict")
		seat := ""
		if appErr, ok := apperror.As(err); ok {
			if id, ok := appErr.Meta["event_seat_id"].(string); ok {
				seat = id
			}
		}
		if seat == "" && seatID != uuid.Nil {
			seat = seatID.String()
		}
		s.log.LogHoldConflict(ctx, attendeeID.String(), seat, err.Error())
	case apperror.KindInternal:
		metrics.HoldAttempt("error")
		s.log.ErrorContext(ctx, "hold failed", "attendee_id", attendeeID.String(), "error", err.Error())
	default:
		metrics.HoldAttempt("rejected")
	}
}

func sortedUnique(ids []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, apperror.BadRequest(fmt.Sprintf("duplicate seat id %s", id))
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
