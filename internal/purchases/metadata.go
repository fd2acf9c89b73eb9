package purchases

import (
	"fmt"
	"strings"

	"ticketflow/internal/shared/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata keys sent with the authorization and read back at finalization
const (
	metaAttendeeID     = "attendee_id"
	metaAttendeeEmail  = "attendee_email"
	metaEventID        = "event_id"
	metaSeatIDs        = "seat_ids"
	metaReservationIDs = "reservation_ids"
	metaSubtotal       = "subtotal"
	metaTaxAmount      = "tax_amount"
	metaTotalAmount    = "total_amount"
	metaIdempotencyKey = "idempotency_key"
)

// PurchaseMetadata is what the orchestrator captured when it asked for payment
type PurchaseMetadata struct {
	AttendeeID     uuid.UUID
	AttendeeEmail  string
	EventID        uuid.UUID
	SeatIDs        []uuid.UUID
	ReservationIDs []uuid.UUID
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	IdempotencyKey string
}

func (m PurchaseMetadata) Encode() map[string]string {
	return map[string]string{
		metaAttendeeID:     m.AttendeeID.String(),
		metaAttendeeEmail:  m.AttendeeEmail,
		metaEventID:        m.EventID.String(),
		metaSeatIDs:        joinIDs(m.SeatIDs),
		metaReservationIDs: joinIDs(m.ReservationIDs),
		metaSubtotal:       m.Subtotal.StringFixed(2),
		metaTaxAmount:      m.TaxAmount.StringFixed(2),
		metaTotalAmount:    m.TotalAmount.StringFixed(2),
		metaIdempotencyKey: m.IdempotencyKey,
	}
}

// DecodeMetadata rejects anything it cannot act on as BadRequest
func DecodeMetadata(raw map[string]string) (*PurchaseMetadata, error) {
	if len(raw) == 0 {
		return nil, apperror.BadRequest("payment metadata is missing")
	}

	attendeeID, err := uuid.Parse(raw[metaAttendeeID])
	if err != nil {
		return nil, apperror.BadRequest("payment metadata has an invalid attendee_id")
	}
	eventID, err := uuid.Parse(raw[metaEventID])
	if err != nil {
		return nil, apperror.BadRequest("payment metadata has an invalid event_id")
	}
	seatIDs, err := splitIDs(raw[metaSeatIDs])
	if err != nil || len(seatIDs) == 0 {
		return nil, apperror.BadRequest("payment metadata has invalid seat_ids")
	}
	reservationIDs, err := splitIDs(raw[metaReservationIDs])
	if err != nil {
		return nil, apperror.BadRequest("payment metadata has invalid reservation_ids")
	}

	amounts := make([]decimal.Decimal, 3)
	for i, key := range []string{metaSubtotal, metaTaxAmount, metaTotalAmount} {
		amounts[i], err = decimal.NewFromString(raw[key])
		if err != nil {
			return nil, apperror.BadRequest(fmt.Sprintf("payment metadata has an invalid %s", key))
		}
	}

	return &PurchaseMetadata{
		AttendeeID:     attendeeID,
		AttendeeEmail:  raw[metaAttendeeEmail],
		EventID:        eventID,
		SeatIDs:        seatIDs,
		ReservationIDs: reservationIDs,
		Subtotal:       amounts[0],
		TaxAmount:      amounts[1],
		TotalAmount:    amounts[2],
		IdempotencyKey: raw[metaIdempotencyKey],
	}, nil
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	seen := make(map[uuid.UUID]bool, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
