package payments

import (
	"context"
	"errors"
)

// Processor event types the service reacts to
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

type AuthorizationRequest struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
	ReceiptEmail   string
}

type Authorization struct {
	IntentID     string
	ClientSecret string
	Status       string
}

type RefundRequest struct {
	PaymentReferenceID string
	AmountMinor        int64
	IdempotencyKey     string
	Metadata           map[string]string
}

// RefundResult carries the processor's own status string
type RefundResult struct {
	RefundID string
	Status   string
}

// Event is a verified inbound processor notification
type Event struct {
	ID                 string
	Type               string
	PaymentReferenceID string
	Metadata           map[string]string
	AmountConfirmed    int64
	Currency           string
}

// Gateway is the narrow view of the payment processor
type Gateway interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	GetRefund(ctx context.Context, refundID string) (*RefundResult, error)
	ParseEvent(payload []byte, signature string) (*Event, error)
}
