package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ticketflow/internal/inventory"
	"ticketflow/internal/payments"
	"ticketflow/internal/reservations"
	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifier delivers the purchase confirmation. Errors are logged, never propagated.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type FinalizeResult struct {
	Payment   *payments.Payment         `json:"payment"`
	Tickets   []tickets.Ticket          `json:"tickets"`
	Anomalies []payments.PaymentAnomaly `json:"anomalies,omitempty"`
	Duplicate bool                      `json:"duplicate"`
}

type Finalizer interface {
	Finalize(ctx context.Context, event payments.Event) (*FinalizeResult, error)
}

type FinalizerOptions struct {
	Currency string
}

type finalizer struct {
	db           *gorm.DB
	ledger       inventory.Ledger
	reservations reservations.Repository
	tickets      tickets.Repository
	payments     payments.Repository
	availability reservations.AvailabilityInvalidator
	notifier     Notifier
	clock        clock.Clock
	log          *logger.Logger
	opts         FinalizerOptions
}

func NewFinalizer(db *gorm.DB, ledger inventory.Ledger, reservationRepo reservations.Repository,
	ticketRepo tickets.Repository, paymentRepo payments.Repository, availability reservations.AvailabilityInvalidator,
	notifier Notifier, clk clock.Clock, log *logger.Logger, opts FinalizerOptions) Finalizer {
	return &finalizer{
		db:           db,
		ledger:       ledger,
		reservations: reservationRepo,
		tickets:      ticketRepo,
		payments:     paymentRepo,
		availability: availability,
		notifier:     notifier,
		clock:        clk,
		log:          log,
		opts:         opts,
	}
}

var errAlreadyFinalized = errors.New("payment already finalized")

// txScope binds every repository to the finalization transaction
type txScope struct {
	ledger       inventory.Ledger
	reservations reservations.Repository
	tickets      tickets.Repository
	payments     payments.Repository
}

func (f *finalizer) scope(tx *gorm.DB) txScope {
	return txScope{
		ledger:       f.ledger.WithTx(tx),
		reservations: f.reservations.WithTx(tx),
		tickets:      f.tickets.WithTx(tx),
		payments:     f.payments.WithTx(tx),
	}
}

// Finalize turns a confirmed payment into tickets. Redelivery of the same
// event returns the original outcome with Duplicate set.
func (f *finalizer) Finalize(ctx context.Context, event payments.Event) (*FinalizeResult, error) {
	if event.Type != payments.EventPaymentSucceeded {
		return nil, apperror.BadRequest(fmt.Sprintf("unsupported payment event type %q", event.Type))
	}
	if strings.TrimSpace(event.PaymentReferenceID) == "" {
		return nil, apperror.BadRequest("payment event has no payment reference")
	}
	meta, err := DecodeMetadata(event.Metadata)
	if err != nil {
		metrics.Finalization("rejected")
		return nil, err
	}

	result := &FinalizeResult{}
	err = f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s := f.scope(tx)

		existing, err := s.payments.FindByExternalID(ctx, event.PaymentReferenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyFinalized
		}

		payment := f.newPayment(event, meta)
		if err := s.payments.Create(ctx, payment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyFinalized
			}
			return err
		}
		result.Payment = payment

		if event.AmountConfirmed != ToMinorUnits(meta.TotalAmount) {
			anomaly, err := f.flag(ctx, s, payment, nil, payments.AnomalyAmountMismatch,
				fmt.Sprintf("confirmed %d minor units, expected %d", event.AmountConfirmed, ToMinorUnits(meta.TotalAmount)))
			if err != nil {
				return err
			}
			result.Anomalies = append(result.Anomalies, *anomaly)
		}

		for _, seatID := range meta.SeatIDs {
			if err := f.finalizeSeat(ctx, s, payment, meta, seatID, result); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, errAlreadyFinalized) {
		return f.duplicate(ctx, event.PaymentReferenceID)
	}
	if err != nil {
		metrics.Finalization("error")
		f.log.ErrorContext(ctx, "payment finalization rolled back",
			"payment_intent_id", event.PaymentReferenceID, "error", err.Error())
		return nil, err
	}

	metrics.Finalization("issued")
	f.log.LogTicketsIssued(ctx, result.Payment.ID.String(), event.PaymentReferenceID, len(result.Tickets))
	if f.availability != nil {
		f.availability.InvalidateAvailability(ctx, meta.EventID)
	}
	f.notify(ctx, meta, result)
	return result, nil
}

func (f *finalizer) newPayment(event payments.Event, meta *PurchaseMetadata) *payments.Payment {
	currency := strings.ToLower(event.Currency)
	if currency == "" {
		currency = f.opts.Currency
	}
	return &payments.Payment{
		AttendeeID:              meta.AttendeeID,
		AttendeeEmail:           meta.AttendeeEmail,
		EventID:                 meta.EventID,
		Subtotal:                meta.Subtotal,
		TaxAmount:               meta.TaxAmount,
		TotalAmount:             meta.TotalAmount,
		AmountConfirmedMinor:    event.AmountConfirmed,
		Currency:                currency,
		TicketQuantity:          len(meta.SeatIDs),
		ExternalPaymentIntentID: event.PaymentReferenceID,
	}
}

func (f *finalizer) finalizeSeat(ctx context.Context, s txScope, payment *payments.Payment, meta *PurchaseMetadata,
	seatID uuid.UUID, result *FinalizeResult) error {
	seat, err := s.ledger.LockSeat(ctx, seatID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return f.skipSeat(ctx, s, payment, seatID, "seat no longer exists", result)
		}
		return err
	}
	if seat.EventID != meta.EventID {
		return f.skipSeat(ctx, s, payment, seatID,
			fmt.Sprintf("seat belongs to event %s, not %s", seat.EventID, meta.EventID), result)
	}

	blocking, err := s.tickets.FindBlockingBySeat(ctx, seatID)
	if err != nil {
		return err
	}
	if blocking != nil {
		return f.skipSeat(ctx, s, payment, seatID,
			fmt.Sprintf("seat already has ticket %s in status %s", blocking.ID, blocking.Status), result)
	}

	reservation, err := s.reservations.FindActiveForAttendee(ctx, seatID, meta.AttendeeID)
	if err != nil {
		return err
	}
	if seat.Status != inventory.SeatReserved && seat.Status != inventory.SeatAvailable {
		if reservation != nil {
			if _, err := s.reservations.SetStatus(ctx, reservation.ID, reservations.StatusCanceled); err != nil {
				return err
			}
		}
		return f.skipSeat(ctx, s, payment, seatID, fmt.Sprintf("seat is %s", seat.Status), result)
	}
	if reservation != nil {
		if _, err := s.reservations.SetStatus(ctx, reservation.ID, reservations.StatusConverted); err != nil {
			return err
		}
	} else {
		competing, err := f.settleOtherHolds(ctx, s, seatID)
		if err != nil {
			return err
		}
		if competing != nil {
			return f.skipSeat(ctx, s, payment, seatID,
				fmt.Sprintf("seat is held by reservation %s until %s", competing.ID, competing.ExpirationAt.UTC().Format("2006-01-02T15:04:05Z")), result)
		}
		anomaly, err := f.flag(ctx, s, payment, &seatID, payments.AnomalyReservationMissing,
			"no active reservation for the paying attendee; ticket issued on a free seat")
		if err != nil {
			return err
		}
		result.Anomalies = append(result.Anomalies, *anomaly)
	}

	if seat.Status == inventory.SeatAvailable {
		if _, err := s.ledger.TransitionSeatStatus(ctx, seatID, &seat.Status, inventory.SeatReserved); err != nil {
			return err
		}
	}
	reserved := inventory.SeatReserved
	if _, err := s.ledger.TransitionSeatStatus(ctx, seatID, &reserved, inventory.SeatSold); err != nil {
		return err
	}

	ticket := &tickets.Ticket{
		PaymentID:     payment.ID,
		AttendeeID:    meta.AttendeeID,
		EventID:       meta.EventID,
		EventSeatID:   seatID,
		CategoryLabel: seat.CategoryLabel,
		SeatLabel:     seat.Label(),
		UnitPrice:     seat.BasePrice,
		Status:        tickets.StatusSold,
	}
	if err := s.tickets.Issue(ctx, ticket); err != nil {
		return err
	}
	result.Tickets = append(result.Tickets, *ticket)
	return nil
}

// settleOtherHolds expires lapsed holds on the seat and returns a live one if any remains
func (f *finalizer) settleOtherHolds(ctx context.Context, s txScope, seatID uuid.UUID) (*reservations.Reservation, error) {
	active, err := s.reservations.ListActiveBySeat(ctx, seatID)
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	var live *reservations.Reservation
	for i := range active {
		if active[i].IsLive(now) {
			live = &active[i]
			continue
		}
		if _, err := s.reservations.SetStatus(ctx, active[i].ID, reservations.StatusExpired); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (f *finalizer) skipSeat(ctx context.Context, s txScope, payment *payments.Payment, seatID uuid.UUID,
	detail string, result *FinalizeResult) error {
	anomaly, err := f.flag(ctx, s, payment, &seatID, payments.AnomalySeatUnavailable, detail)
	if err != nil {
		return err
	}
	result.Anomalies = append(result.Anomalies, *anomaly)
	return nil
}

func (f *finalizer) flag(ctx context.Context, s txScope, payment *payments.Payment, seatID *uuid.UUID,
	kind payments.AnomalyKind, detail string) (*payments.PaymentAnomaly, error) {
	anomaly := &payments.PaymentAnomaly{
		PaymentID:   payment.ID,
		EventSeatID: seatID,
		Kind:        kind,
		Detail:      detail,
	}
	if err := s.payments.CreateAnomaly(ctx, anomaly); err != nil {
		return nil, err
	}

	seat := ""
	if seatID != nil {
		seat = seatID.String()
	}
	metrics.Anomaly(string(kind))
	f.log.LogAnomaly(ctx, string(kind), payment.ID.String(), seat, detail)
	return anomaly, nil
}

func (f *finalizer) duplicate(ctx context.Context, intentID string) (*FinalizeResult, error) {
	payment, err := f.payments.FindByExternalID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.Internal("payment vanished after duplicate detection", nil)
	}
	issued, err := f.tickets.ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	anomalies, err := f.payments.ListAnomalies(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	metrics.Finalization("duplicate")
	f.log.InfoContext(ctx, "duplicate payment confirmation ignored",
		"payment_id", payment.ID.String(), "payment_intent_id", intentID)
	return &FinalizeResult{Payment: payment, Tickets: issued, Anomalies: anomalies, Duplicate: true}, nil
}

func (f *finalizer) notify(ctx context.Context, meta *PurchaseMetadata, result *FinalizeResult) {
	if f.notifier == nil || meta.AttendeeEmail == "" || len(result.Tickets) == 0 {
		return
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Your purchase is confirmed. Total charged: %s %s\n\n",
		result.Payment.TotalAmount.StringFixed(2), strings.ToUpper(result.Payment.Currency))
	for _, t := range result.Tickets {
		fmt.Fprintf(&body, "Seat %s (%s) ticket %s\n", t.SeatLabel, t.CategoryLabel, t.ID)
	}

	if err := f.notifier.Send(ctx, meta.AttendeeEmail, "Your tickets are confirmed", body.String()); err != nil {
		f.log.WarnContext(ctx, "purchase confirmation not sent",
			"payment_id", result.Payment.ID.String(), "error", err.Error())
	}
}
