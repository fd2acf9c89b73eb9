// Package paymentstest provides an in-memory payment processor for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"ticketflow/internal/payments"
)

// Gateway behaves like an idempotent processor: the same idempotency key
// always yields the same intent or refund.
type Gateway struct {
	mu sync.Mutex

	AuthorizeErr      error
	RefundErr         error
	GetRefundErr      error
	RefundStatus      string
	RefundStatusOnGet string

	Authorizations []payments.AuthorizationRequest
	Refunds        []payments.RefundRequest
	RefundLookups  []string

	intents map[string]*payments.Authorization
	refunds map[string]*payments.RefundResult
	events  map[string]*payments.Event
}

func NewGateway() *Gateway {
	return &Gateway{
		RefundStatus: "succeeded",
		intents:      make(map[string]*payments.Authorization),
		refunds:      make(map[string]*payments.RefundResult),
		events:       make(map[string]*payments.Event),
	}
}

func (g *Gateway) CreateAuthorization(ctx context.Context, req payments.AuthorizationRequest) (*payments.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Authorizations = append(g.Authorizations, req)
	if g.AuthorizeErr != nil {
		return nil, g.AuthorizeErr
	}
	if existing, ok := g.intents[req.IdempotencyKey]; ok {
		return existing, nil
	}

	n := len(g.intents) + 1
	auth := &payments.Authorization{
		IntentID:     fmt.Sprintf("pi_test_%d", n),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", n),
		Status:       "requires_payment_method",
	}
	g.intents[req.IdempotencyKey] = auth
	return auth, nil
}

func (g *Gateway) CreateRefund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Refunds = append(g.Refunds, req)
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	if existing, ok := g.refunds[req.IdempotencyKey]; ok {
		return existing, nil
	}

	result := &payments.RefundResult{
		RefundID: fmt.Sprintf("re_test_%d", len(g.refunds)+1),
		Status:   g.RefundStatus,
	}
	g.refunds[req.IdempotencyKey] = result
	return result, nil
}

func (g *Gateway) GetRefund(ctx context.Context, refundID string) (*payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.RefundLookups = append(g.RefundLookups, refundID)
	if g.GetRefundErr != nil {
		return nil, g.GetRefundErr
	}
	for _, r := range g.refunds {
		if r.RefundID == refundID {
			status := r.Status
			if g.RefundStatusOnGet != "" {
				status = g.RefundStatusOnGet
			}
			return &payments.RefundResult{RefundID: r.RefundID, Status: status}, nil
		}
	}
	if g.RefundStatusOnGet != "" {
		return &payments.RefundResult{RefundID: refundID, Status: g.RefundStatusOnGet}, nil
	}
	return nil, fmt.Errorf("refund %s not found", refundID)
}

// AddEvent registers a payload the fake will accept with the given signature
func (g *Gateway) AddEvent(signature string, event *payments.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[signature] = event
}

func (g *Gateway) ParseEvent(payload []byte, signature string) (*payments.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	event, ok := g.events[signature]
	if !ok {
		return nil, payments.ErrInvalidSignature
	}
	return event, nil
}
