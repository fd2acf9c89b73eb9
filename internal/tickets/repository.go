package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketflow/internal/shared/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	// Issue stores the ticket together with a freshly minted QR token
	Issue(ctx context.Context, ticket *Ticket) error
	FindBlockingBySeat(ctx context.Context, seatID uuid.UUID) (*Ticket, error)
	LockByID(ctx context.Context, ticketID uuid.UUID) (*Ticket, error)
	LockForAttendee(ctx context.Context, ticketID, attendeeID uuid.UUID) (*Ticket, error)
	FindByToken(ctx context.Context, token string) (*QrToken, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]Ticket, error)
	TransitionStatus(ctx context.Context, ticket *Ticket, next Status, at time.Time) error
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

func (r *repository) Issue(ctx context.Context, ticket *Ticket) error {
	value, err := NewQrTokenValue()
	if err != nil {
		return err
	}

	db := r.db.WithContext(ctx)
	if err := db.Omit("QrToken").Create(ticket).Error; err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	token := &QrToken{TicketID: ticket.ID, Token: value}
	if err := db.Create(token).Error; err != nil {
		return fmt.Errorf("failed to create qr token: %w", err)
	}
	ticket.QrToken = token
	return nil
}

func (r *repository) FindBlockingBySeat(ctx context.Context, seatID uuid.UUID) (*Ticket, error) {
	var ticket Ticket
	err := r.db.WithContext(ctx).
		Where("event_seat_id = ? AND status IN ?", seatID, BlockingStatuses).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check seat tickets: %w", err)
	}
	return &ticket, nil
}

func (r *repository) LockByID(ctx context.Context, ticketID uuid.UUID) (*Ticket, error) {
	var ticket Ticket
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ticket, "id = ?", ticketID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("ticket not found")
		}
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}
	return &ticket, nil
}

func (r *repository) LockForAttendee(ctx context.Context, ticketID, attendeeID uuid.UUID) (*Ticket, error) {
	var ticket Ticket
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND attendee_id = ?", ticketID, attendeeID).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("ticket not found")
		}
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}
	return &ticket, nil
}

// FindByToken returns nil when the token is unknown
func (r *repository) FindByToken(ctx context.Context, token string) (*QrToken, error) {
	var qr QrToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&qr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find qr token: %w", err)
	}
	return &qr, nil
}

func (r *repository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]Ticket, error) {
	var tickets []Ticket
	if err := r.db.WithContext(ctx).
		Preload("QrToken").
		Where("payment_id = ?", paymentID).
		Order("seat_label").
		Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (r *repository) TransitionStatus(ctx context.Context, ticket *Ticket, next Status, at time.Time) error {
	if !CanTransition(ticket.Status, next) {
		return apperror.Conflict("Illegal ticket status transition", apperror.Meta{
			"ticket_id":        ticket.ID.String(),
			"ticket_status":    ticket.Status.String(),
			"ticket_status_id": ticket.Status.ID(),
			"requested_status": next.String(),
		})
	}

	updates := map[string]interface{}{"status": next}
	if next == StatusCheckedIn {
		updates["checked_in_at"] = at
	}
	if err := r.db.WithContext(ctx).Model(&Ticket{}).Where("id = ?", ticket.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}

	ticket.Status = next
	if next == StatusCheckedIn {
		ticket.CheckedInAt = &at
	}
	return nil
}
