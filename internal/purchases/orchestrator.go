package purchases

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/payments"
	"ticketflow/internal/reservations"
	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/validation"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseRequest struct {
	AttendeeID    uuid.UUID   `validate:"required"`
	AttendeeEmail string      `validate:"omitempty,email"`
	SeatIDs       []uuid.UUID `validate:"required,min=1,dive,required"`
}

// PurchaseResult is the client payment handle plus the pricing it was built from
type PurchaseResult struct {
	ClientSecret    string    `json:"client_secret"`
	PaymentIntentID string    `json:"payment_intent_id"`
	IdempotencyKey  string    `json:"idempotency_key"`
	EventID         uuid.UUID `json:"event_id"`
	Pricing         Pricing   `json:"pricing"`
	HoldExpiresAt   time.Time `json:"hold_expires_at"`
}

type Orchestrator interface {
	InitiatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
}

type OrchestratorOptions struct {
	TaxRate          decimal.Decimal
	Currency         string
	MaxSeatsPerOrder int
}

type orchestrator struct {
	db           *gorm.DB
	ledger       inventory.Ledger
	reservations reservations.Repository
	tickets      tickets.Repository
	gateway      payments.Gateway
	clock        clock.Clock
	log          *logger.Logger
	opts         OrchestratorOptions
}

func NewOrchestrator(db *gorm.DB, ledger inventory.Ledger, reservationRepo reservations.Repository,
	ticketRepo tickets.Repository, gateway payments.Gateway, clk clock.Clock, log *logger.Logger,
	opts OrchestratorOptions) Orchestrator {
	return &orchestrator{
		db:           db,
		ledger:       ledger,
		reservations: reservationRepo,
		tickets:      ticketRepo,
		gateway:      gateway,
		clock:        clk,
		log:          log,
		opts:         opts,
	}
}

// validatedPurchase is what the validation transaction hands to the payment step
type validatedPurchase struct {
	eventID        uuid.UUID
	seatIDs        []uuid.UUID
	reservationIDs []uuid.UUID
	prices         []decimal.Decimal
	holdExpiresAt  time.Time
}

func (o *orchestrator) InitiatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := validation.Struct(req); err != nil {
		metrics.PurchaseAttempt("rejected")
		return nil, err
	}
	if o.opts.MaxSeatsPerOrder > 0 && len(req.SeatIDs) > o.opts.MaxSeatsPerOrder {
		metrics.PurchaseAttempt("rejected")
		return nil, apperror.BadRequest(fmt.Sprintf("at most %d seats per purchase", o.opts.MaxSeatsPerOrder))
	}

	validated, err := o.validate(ctx, req)
	if err != nil {
		if apperror.Is(err, apperror.KindConflict) {
			metrics.PurchaseAttempt("conflict")
		} else {
			metrics.PurchaseAttempt("rejected")
		}
		return nil, err
	}

	// The validation transaction is committed; nothing is locked past this point.
	pricing := ComputePricing(validated.prices, o.opts.TaxRate, o.opts.Currency)
	key := IdempotencyKey(req.AttendeeID, validated.eventID, validated.reservationIDs)
	metadata := PurchaseMetadata{
		AttendeeID:     req.AttendeeID,
		AttendeeEmail:  req.AttendeeEmail,
		EventID:        validated.eventID,
		SeatIDs:        validated.seatIDs,
		ReservationIDs: validated.reservationIDs,
		Subtotal:       pricing.Subtotal,
		TaxAmount:      pricing.TaxAmount,
		TotalAmount:    pricing.TotalAmount,
		IdempotencyKey: key,
	}

	started := time.Now()
	auth, err := o.gateway.CreateAuthorization(ctx, payments.AuthorizationRequest{
		AmountMinor:    pricing.AmountMinor,
		Currency:       pricing.Currency,
		IdempotencyKey: key,
		Metadata:       metadata.Encode(),
		ReceiptEmail:   req.AttendeeEmail,
	})
	if err != nil {
		metrics.ProcessorCall("create_authorization", "error", time.Since(started).Seconds())
		metrics.PurchaseAttempt("processor_error")
		o.log.ErrorContext(ctx, "payment authorization failed",
			"attendee_id", req.AttendeeID.String(), "idempotency_key", key, "error", err.Error())
		// A failed call may still have created the intent; retrying with the same key is safe.
		return nil, apperror.ExternalService("Payment authorization status unknown", err, apperror.Meta{
			"idempotency_key": key,
			"status":          "unknown",
			"retryable":       true,
		})
	}
	metrics.ProcessorCall("create_authorization", "ok", time.Since(started).Seconds())
	metrics.PurchaseAttempt("success")

	o.log.LogPurchaseInitiated(ctx, req.AttendeeID.String(), validated.eventID.String(), auth.IntentID, key, pricing.AmountMinor)

	return &PurchaseResult{
		ClientSecret:    auth.ClientSecret,
		PaymentIntentID: auth.IntentID,
		IdempotencyKey:  key,
		EventID:         validated.eventID,
		Pricing:         pricing,
		HoldExpiresAt:   validated.holdExpiresAt,
	}, nil
}

func (o *orchestrator) validate(ctx context.Context, req PurchaseRequest) (*validatedPurchase, error) {
	seatIDs := append([]uuid.UUID(nil), req.SeatIDs...)
	sort.Slice(seatIDs, func(i, j int) bool { return seatIDs[i].String() < seatIDs[j].String() })
	for i := 1; i < len(seatIDs); i++ {
		if seatIDs[i] == seatIDs[i-1] {
			return nil, apperror.BadRequest(fmt.Sprintf("duplicate seat id %s", seatIDs[i]))
		}
	}

	now := o.clock.Now()
	result := &validatedPurchase{seatIDs: seatIDs}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := o.ledger.WithTx(tx)
		reservationRepo := o.reservations.WithTx(tx)
		ticketRepo := o.tickets.WithTx(tx)

		seats, err := ledger.LockSeats(ctx, seatIDs)
		if err != nil {
			return err
		}
		result.eventID = seats[0].EventID

		checked := make([]*inventory.EventSeat, 0, len(seatIDs))
		for _, seatID := range seatIDs {
			seat, err := ledger.EnsureSeatBelongsToEvent(ctx, result.eventID, seatID)
			if err != nil {
				return err
			}
			checked = append(checked, seat)
		}

		if _, err := ledger.EnsureEventOnSale(ctx, result.eventID); err != nil {
			return err
		}

		for _, seat := range checked {
			if err := o.checkSeat(ctx, reservationRepo, ticketRepo, req.AttendeeID, seat, now, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *orchestrator) checkSeat(ctx context.Context, reservationRepo reservations.Repository, ticketRepo tickets.Repository,
	attendeeID uuid.UUID, seat *inventory.EventSeat, now time.Time, result *validatedPurchase) error {
	if seat.Status != inventory.SeatReserved {
		return apperror.Conflict("Seat must be reserved before purchase", apperror.Meta{
			"event_seat_id":     seat.ID.String(),
			"current_status":    seat.Status.String(),
			"current_status_id": seat.Status.ID(),
			"allowed_status_id": inventory.SeatReserved.ID(),
		})
	}

	ticket, err := ticketRepo.FindBlockingBySeat(ctx, seat.ID)
	if err != nil {
		return err
	}
	if ticket != nil {
		return apperror.Conflict("Seat already has a ticket", apperror.Meta{
			"event_seat_id":    seat.ID.String(),
			"ticket_id":        ticket.ID.String(),
			"ticket_status_id": ticket.Status.ID(),
		})
	}

	reservation, err := reservationRepo.FindActiveForAttendee(ctx, seat.ID, attendeeID)
	if err != nil {
		return err
	}
	if reservation == nil || !reservation.IsLive(now) {
		return apperror.Conflict("No active reservation for this seat", apperror.Meta{
			"event_seat_id":       seat.ID.String(),
			"current_attendee_id": attendeeID.String(),
		})
	}

	result.reservationIDs = append(result.reservationIDs, reservation.ID)
	result.prices = append(result.prices, seat.BasePrice)
	if result.holdExpiresAt.IsZero() || reservation.ExpirationAt.Before(result.holdExpiresAt) {
		result.holdExpiresAt = reservation.ExpirationAt
	}
	return nil
}
