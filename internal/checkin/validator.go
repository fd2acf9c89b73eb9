package checkin

import (
	"context"
	"strings"
	"time"

	"ticketflow/internal/inventory"
	"ticketflow/internal/refunds"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/validation"
	"ticketflow/internal/tickets"
	"ticketflow/pkg/logger"
	"ticketflow/pkg/metrics"

	"gorm.io/gorm"
)

type Validator interface {
	CheckIn(ctx context.Context, req CheckInRequest) (*Result, error)
	History(ctx context.Context, token string) ([]CheckInAttempt, error)
}

type validator struct {
	db      *gorm.DB
	repo    Repository
	tickets tickets.Repository
	ledger  inventory.Ledger
	refunds refunds.Repository
	clock   clock.Clock
	log     *logger.Logger
}

func NewValidator(db *gorm.DB, repo Repository, ticketRepo tickets.Repository, ledger inventory.Ledger,
	refundRepo refunds.Repository, clk clock.Clock, log *logger.Logger) Validator {
	return &validator{
		db:      db,
		repo:    repo,
		tickets: ticketRepo,
		ledger:  ledger,
		refunds: refundRepo,
		clock:   clk,
		log:     log,
	}
}

// InWindow reports whether at falls on the event's calendar date in the
// event's own time zone.
func InWindow(event *inventory.Event, at time.Time) bool {
	loc := event.Location()
	ey, em, ed := event.StartsAt.In(loc).Date()
	y, m, d := at.In(loc).Date()
	return ey == y && em == m && ed == d
}

// CheckIn resolves a scanned token to an outcome. Every outcome, including a
// rejected one, is written to the attempt log in the same transaction.
func (v *validator) CheckIn(ctx context.Context, req CheckInRequest) (*Result, error) {
	req.Token = strings.TrimSpace(req.Token)
	req.ScannerID = strings.TrimSpace(req.ScannerID)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := v.clock.Now()
	var result *Result

	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := v.repo.WithTx(tx)
		ticketRepo := v.tickets.WithTx(tx)

		attempt := &CheckInAttempt{ScannerID: req.ScannerID, ScannedAt: now}
		record := func(outcome Outcome, reason string, ticket *tickets.Ticket) error {
			attempt.Outcome = outcome
			if err := repo.Append(ctx, attempt); err != nil {
				return err
			}
			result = &Result{
				Outcome:   outcome,
				OutcomeID: outcome.ID(),
				TicketID:  attempt.TicketID,
				AttemptID: attempt.ID,
				Reason:    reason,
			}
			if ticket != nil {
				result.SeatLabel = ticket.SeatLabel
				result.CheckedInAt = ticket.CheckedInAt
			}
			return nil
		}

		qr, err := ticketRepo.FindByToken(ctx, req.Token)
		if err != nil {
			return err
		}
		if qr == nil {
			attempt.PresentedToken = req.Token
			return record(OutcomeInvalid, "unknown token", nil)
		}
		qrID, ticketID := qr.ID, qr.TicketID
		attempt.TicketQrID = &qrID
		attempt.TicketID = &ticketID

		ticket, err := ticketRepo.LockByID(ctx, qr.TicketID)
		if err != nil {
			return err
		}
		if !ticket.Status.IsBlocking() {
			return record(OutcomeInvalid, "ticket is "+strings.ToLower(ticket.Status.String()), ticket)
		}

		// The ticket lock orders this against a refund being opened.
		refund, err := v.refunds.WithTx(tx).FindByTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if refund != nil && refund.Status != refunds.StatusRejected {
			return record(OutcomeInvalid, "refund pending", ticket)
		}

		event, err := v.ledger.WithTx(tx).GetEvent(ctx, ticket.EventID)
		if err != nil {
			return err
		}
		if !InWindow(event, now) {
			return record(OutcomeOutsideWindow, "valid on "+event.StartsAt.In(event.Location()).Format("2006-01-02"), ticket)
		}

		first, err := repo.FirstOK(ctx, qr.ID)
		if err != nil {
			return err
		}
		if first != nil {
			return record(OutcomeDuplicate, "already admitted at "+first.ScannedAt.In(event.Location()).Format(time.Kitchen), ticket)
		}

		if ticket.Status != tickets.StatusCheckedIn {
			if err := ticketRepo.TransitionStatus(ctx, ticket, tickets.StatusCheckedIn, now); err != nil {
				return err
			}
		}
		return record(OutcomeOK, "", ticket)
	})
	if err != nil {
		v.log.ErrorContext(ctx, "check-in failed", "scanner_id", req.ScannerID, "error", err.Error())
		return nil, err
	}

	ticketID := ""
	if result.TicketID != nil {
		ticketID = result.TicketID.String()
	}
	metrics.CheckIn(result.Outcome.String())
	v.log.LogCheckIn(ctx, ticketID, req.ScannerID, result.Outcome.String())
	return result, nil
}

// History lists every scan of a token, oldest first. Unknown tokens have none.
func (v *validator) History(ctx context.Context, token string) ([]CheckInAttempt, error) {
	qr, err := v.tickets.FindByToken(ctx, strings.TrimSpace(token))
	if err != nil || qr == nil {
		return nil, err
	}
	return v.repo.ListByQr(ctx, qr.ID)
}
