package purchases

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

var hundred = decimal.NewFromInt(100)

// Pricing is the snapshot shown to the client and echoed in processor metadata
type Pricing struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Quantity    int             `json:"quantity"`
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputePricing sums base prices, then rounds tax and total to cents
func ComputePricing(prices []decimal.Decimal, taxRate decimal.Decimal, currency string) Pricing {
	subtotal := decimal.Zero
	for _, p := range prices {
		subtotal = subtotal.Add(p)
	}
	subtotal = round2(subtotal)
	tax := round2(subtotal.Mul(taxRate))
	total := round2(subtotal.Add(tax))

	return Pricing{
		Subtotal:    subtotal,
		TaxRate:     taxRate,
		TaxAmount:   tax,
		TotalAmount: total,
		AmountMinor: ToMinorUnits(total),
		Currency:    currency,
		Quantity:    len(prices),
	}
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// IdempotencyKey is stable for the same attendee, event and set of holds.
// A fresh hold produces a new reservation id and therefore a new key.
func IdempotencyKey(attendeeID, eventID uuid.UUID, reservationIDs []uuid.UUID) string {
	ids := make([]string, len(reservationIDs))
	for i, id := range reservationIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	sum := blake2b.Sum256([]byte(attendeeID.String() + "|" + eventID.String() + "|" + strings.Join(ids, ",")))
	return "purchase_" + hex.EncodeToString(sum[:])
}
