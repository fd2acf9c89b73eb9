package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/payments"
	"ticketflow/internal/purchases"
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

// Notifier delivers the refund confirmation. Failures are only logged.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AvailabilityInvalidator drops cached seat maps once a seat is back on sale
type AvailabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context, eventID uuid.UUID)
}

type Coordinator interface {
	RequestRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	Reconcile(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileReport, error)
}

type coordinator struct {
	db           *gorm.DB
	repo         Repository
	ledger       inventory.Ledger
	tickets      tickets.Repository
	payments     payments.Repository
	gateway      payments.Gateway
	availability AvailabilityInvalidator
	notifier     Notifier
	clock        clock.Clock
	log          *logger.Logger
}

func NewCoordinator(db *gorm.DB, repo Repository, ledger inventory.Ledger, ticketRepo tickets.Repository,
	paymentRepo payments.Repository, gateway payments.Gateway, availability AvailabilityInvalidator,
	notifier Notifier, clk clock.Clock, log *logger.Logger) Coordinator {
	return &coordinator{
		db:           db,
		repo:         repo,
		ledger:       ledger,
		tickets:      ticketRepo,
		payments:     paymentRepo,
		gateway:      gateway,
		availability: availability,
		notifier:     notifier,
		clock:        clk,
		log:          log,
	}
}

// RequestRefund records the refund, asks the processor for it, and frees the
// seat once the processor reports the money returned. Each step commits on its
// own; Reconcile finishes refunds interrupted between them.
func (c *coordinator) RequestRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	refund, payment, err := c.open(ctx, req)
	if err != nil {
		metrics.Refund("refused")
		return nil, err
	}

	result, err := c.callProcessor(ctx, refund, payment)
	if err != nil {
		rejected, markErr := c.reject(ctx, refund.ID, err)
		if markErr != nil {
			c.log.ErrorContext(ctx, "refund left in REQUESTED after processor failure",
				"refund_id", refund.ID.String(), "error", markErr.Error())
		} else {
			refund = rejected
		}
		return nil, apperror.ExternalService("Refund could not be submitted to the payment processor", err, apperror.Meta{
			"refund_id":     refund.ID.String(),
			"refund_status": refund.Status.String(),
		})
	}

	return c.apply(ctx, refund.ID, result)
}

// open is the first local step: every precondition is checked under lock and
// the REQUESTED row is committed before the processor is contacted.
func (c *coordinator) open(ctx context.Context, req RefundRequest) (*Refund, *payments.Payment, error) {
	now := c.clock.Now()
	var (
		refund  *Refund
		payment *payments.Payment
	)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		ticketRepo := c.tickets.WithTx(tx)

		ticket, err := ticketRepo.LockForAttendee(ctx, req.TicketID, req.AttendeeID)
		if err != nil {
			return err
		}
		if err := refundable(ticket); err != nil {
			return err
		}

		existing, err := repo.FindByTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.Conflict("Ticket already has a refund", apperror.Meta{
				"ticket_id":        ticket.ID.String(),
				"refund_id":        existing.ID.String(),
				"refund_status":    existing.Status.String(),
				"refund_status_id": existing.Status.ID(),
			})
		}

		event, err := c.ledger.WithTx(tx).GetEvent(ctx, ticket.EventID)
		if err != nil {
			return err
		}
		policy, err := repo.GetPolicy(ctx, event.ID)
		if err != nil {
			return err
		}
		if !policy.AllowRefunds {
			return apperror.Conflict("Refunds are not allowed for this event", apperror.Meta{
				"event_id":    event.ID.String(),
				"policy_code": policy.Code,
			})
		}
		if deadline := policy.Deadline(event.StartsAt); now.After(deadline) {
			return apperror.Conflict("Refund window has closed", apperror.Meta{
				"event_id":    event.ID.String(),
				"policy_code": policy.Code,
				"deadline":    deadline.UTC().Format(time.RFC3339),
			})
		}

		payment, err = c.payments.WithTx(tx).GetByID(ctx, ticket.PaymentID)
		if err != nil {
			return err
		}

		gross := TicketAmount(ticket.UnitPrice, payment.Subtotal, payment.TaxAmount)
		fee := policy.Fee(gross)
		refund = &Refund{
			TicketID:      ticket.ID,
			PaymentID:     payment.ID,
			AttendeeID:    req.AttendeeID,
			RefundAmount:  gross.Sub(fee),
			FeeAmount:     fee,
			Currency:      payment.Currency,
			Reason:        strings.TrimSpace(req.Reason),
			Status:        StatusRequested,
			PolicyCode:    policy.Code,
			RequestedAt:   now,
			LastAttemptAt: now,
		}
		return repo.Create(ctx, refund)
	})
	if err != nil {
		return nil, nil, err
	}

	c.log.LogRefund(ctx, refund.ID.String(), refund.TicketID.String(), refund.Status.String(), "")
	return refund, payment, nil
}

func refundable(ticket *tickets.Ticket) error {
	meta := apperror.Meta{
		"ticket_id":        ticket.ID.String(),
		"ticket_status":    ticket.Status.String(),
		"ticket_status_id": ticket.Status.ID(),
	}
	switch ticket.Status {
	case tickets.StatusSold:
		return nil
	case tickets.StatusCheckedIn:
		return apperror.Conflict("Checked-in tickets cannot be refunded", meta)
	case tickets.StatusRefunded:
		return apperror.Conflict("Ticket is already refunded", meta)
	default:
		return apperror.Conflict("Ticket cannot be refunded", meta)
	}
}

// TicketAmount is what one ticket contributed to its payment: the unit price
// plus its proportional share of the tax.
func TicketAmount(unitPrice, subtotal, tax decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() {
		return unitPrice.Round(2)
	}
	share := tax.Mul(unitPrice).Div(subtotal).Round(2)
	return unitPrice.Add(share).Round(2)
}

func (c *coordinator) callProcessor(ctx context.Context, refund *Refund, payment *payments.Payment) (*payments.RefundResult, error) {
	started := time.Now()
	result, err := c.gateway.CreateRefund(ctx, payments.RefundRequest{
		PaymentReferenceID: payment.ExternalPaymentIntentID,
		AmountMinor:        purchases.ToMinorUnits(refund.RefundAmount),
		IdempotencyKey:     refund.IdempotencyKey(),
		Metadata: map[string]string{
			"refund_id": refund.ID.String(),
			"ticket_id": refund.TicketID.String(),
		},
	})
	if err != nil {
		metrics.ProcessorCall("create_refund", "error", time.Since(started).Seconds())
		c.log.ErrorContext(ctx, "refund call failed",
			"refund_id", refund.ID.String(), "payment_intent_id", payment.ExternalPaymentIntentID, "error", err.Error())
		return nil, err
	}
	metrics.ProcessorCall("create_refund", "ok", time.Since(started).Seconds())
	return result, nil
}

func (c *coordinator) reject(ctx context.Context, refundID uuid.UUID, cause error) (*Refund, error) {
	var refund *Refund
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, refundID)
		if err != nil {
			return err
		}
		refund = locked
		if refund.Status.IsTerminal() {
			return nil
		}
		refund.Status = StatusRejected
		refund.FailureReason = cause.Error()
		refund.LastAttemptAt = c.clock.Now()
		return repo.Update(ctx, refund)
	})
	if err != nil {
		return nil, err
	}

	metrics.Refund(refund.Status.String())
	c.log.LogRefund(ctx, refund.ID.String(), refund.TicketID.String(), refund.Status.String(), "")
	return refund, nil
}

// apply records the processor's answer. Only PROCESSED touches the ticket and
// the seat, and only once: a refund already terminal is returned unchanged.
func (c *coordinator) apply(ctx context.Context, refundID uuid.UUID, result *payments.RefundResult) (*Refund, error) {
	now := c.clock.Now()
	status := MapProcessorStatus(result.Status)

	var (
		refund  *Refund
		ticket  *tickets.Ticket
		changed bool
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)

		locked, err := repo.LockByID(ctx, refundID)
		if err != nil {
			return err
		}
		refund = locked
		if refund.Status.IsTerminal() {
			return nil
		}

		if result.RefundID != "" {
			external := result.RefundID
			refund.ExternalRefundID = &external
		}
		refund.Status = status
		refund.LastAttemptAt = now

		switch status {
		case StatusProcessed:
			ticket, err = c.tickets.WithTx(tx).LockByID(ctx, refund.TicketID)
			if err != nil {
				return err
			}
			if err := c.tickets.WithTx(tx).TransitionStatus(ctx, ticket, tickets.StatusRefunded, now); err != nil {
				return err
			}
			sold := inventory.SeatSold
			if _, err := c.ledger.WithTx(tx).TransitionSeatStatus(ctx, ticket.EventSeatID, &sold, inventory.SeatAvailable); err != nil {
				return err
			}
			refund.ProcessedAt = &now
		case StatusRejected:
			refund.FailureReason = fmt.Sprintf("processor reported %s", result.Status)
		}

		changed = true
		return repo.Update(ctx, refund)
	})
	if err != nil {
		c.log.ErrorContext(ctx, "refund outcome not recorded",
			"refund_id", refundID.String(), "processor_refund_id", result.RefundID, "error", err.Error())
		return nil, err
	}
	if !changed {
		return refund, nil
	}

	metrics.Refund(refund.Status.String())
	c.log.LogRefund(ctx, refund.ID.String(), refund.TicketID.String(), refund.Status.String(), result.RefundID)

	if refund.Status == StatusProcessed {
		if c.availability != nil {
			c.availability.InvalidateAvailability(ctx, ticket.EventID)
		}
		c.notify(ctx, refund, ticket)
	}
	return refund, nil
}

func (c *coordinator) notify(ctx context.Context, refund *Refund, ticket *tickets.Ticket) {
	if c.notifier == nil {
		return
	}
	payment, err := c.payments.GetByID(ctx, refund.PaymentID)
	if err != nil || payment.AttendeeEmail == "" {
		return
	}

	body := fmt.Sprintf("Your refund for seat %s has been processed.\nAmount: %s %s\nReference: %s\n",
		ticket.SeatLabel, refund.RefundAmount.StringFixed(2), strings.ToUpper(refund.Currency), refund.ID)
	if err := c.notifier.Send(ctx, payment.AttendeeEmail, "Your refund has been processed", body); err != nil {
		c.log.WarnContext(ctx, "refund confirmation not sent", "refund_id", refund.ID.String(), "error", err.Error())
	}
}
