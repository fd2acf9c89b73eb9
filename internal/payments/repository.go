package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByExternalID(ctx context.Context, externalID string) (*Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	Create(ctx context.Context, payment *Payment) error
	CreateAnomaly(ctx context.Context, anomaly *PaymentAnomaly) error
	ListAnomalies(ctx context.Context, paymentID uuid.UUID) ([]PaymentAnomaly, error)

	// RecordWebhook inserts the delivery or bumps its delivery count
	RecordWebhook(ctx context.Context, event *WebhookEvent) error
	MarkWebhookProcessed(ctx context.Context, provider, providerEventID string, at time.Time, processErr error) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// FindByExternalID returns nil when no payment exists for the intent
func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).Where("external_payment_intent_id = ?", externalID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &payment, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var payment Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *repository) Create(ctx context.Context, payment *Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *repository) CreateAnomaly(ctx context.Context, anomaly *PaymentAnomaly) error {
	if err := r.db.WithContext(ctx).Create(anomaly).Error; err != nil {
		return fmt.Errorf("failed to record payment anomaly: %w", err)
	}
	return nil
}

func (r *repository) ListAnomalies(ctx context.Context, paymentID uuid.UUID) ([]PaymentAnomaly, error) {
	var anomalies []PaymentAnomaly
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at").Find(&anomalies).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment anomalies: %w", err)
	}
	return anomalies, nil
}

func (r *repository) RecordWebhook(ctx context.Context, event *WebhookEvent) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deliveries": gorm.Expr("webhook_events.deliveries + 1"),
		}),
	}).Create(event).Error
	if err != nil {
		return fmt.Errorf("failed to record webhook: %w", err)
	}
	return nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, provider, providerEventID string, at time.Time, processErr error) error {
	updates := map[string]interface{}{"last_error": ""}
	if processErr != nil {
		updates["last_error"] = processErr.Error()
	} else {
		updates["processed_at"] = at
	}

	err := r.db.WithContext(ctx).Model(&WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	return nil
}
