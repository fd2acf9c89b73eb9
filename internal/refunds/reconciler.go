package refunds

import (
	"context"
	"time"

	"ticketflow/internal/payments"
	"ticketflow/internal/shared/apperror"
)

type ReconcileReport struct {
	Checked   int `json:"checked"`
	Processed int `json:"processed"`
	Rejected  int `json:"rejected"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

// Reconcile settles refunds stuck in REQUESTED or APPROVED for longer than
// olderThan. A refund with a processor id is looked up; one without is
// resubmitted under its original idempotency key, so the processor answers
// with the refund it may already have made.
func (c *coordinator) Reconcile(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileReport, error) {
	if limit <= 0 {
		return nil, apperror.BadRequest("reconcile limit must be positive")
	}

	pending, err := c.repo.ListPending(ctx, c.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		refund := &pending[i]
		result, err := c.lookup(ctx, refund)
		if err != nil {
			report.Failed++
			c.log.WarnContext(ctx, "refund reconciliation deferred",
				"refund_id", refund.ID.String(), "error", err.Error())
			continue
		}

		applied, err := c.apply(ctx, refund.ID, result)
		if err != nil {
			report.Failed++
			continue
		}
		switch applied.Status {
		case StatusProcessed:
			report.Processed++
		case StatusRejected:
			report.Rejected++
		default:
			report.Pending++
		}
	}

	c.log.InfoContext(ctx, "refund reconciliation pass finished",
		"checked", report.Checked, "processed", report.Processed, "rejected", report.Rejected,
		"pending", report.Pending, "failed", report.Failed)
	return report, nil
}

func (c *coordinator) lookup(ctx context.Context, refund *Refund) (*payments.RefundResult, error) {
	if refund.ExternalRefundID != nil && *refund.ExternalRefundID != "" {
		return c.gateway.GetRefund(ctx, *refund.ExternalRefundID)
	}

	payment, err := c.payments.GetByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}
	return c.callProcessor(ctx, refund, payment)
}
