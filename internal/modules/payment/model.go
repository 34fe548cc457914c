// README: Payment records binding a gateway order to a delivery order.
package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"fitdash/internal/types"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusVerified Status = "verified"
)

type Payment struct {
	GatewayOrderID string
	OrderID        types.ID
	Amount         decimal.Decimal
	Currency       string
	Status         Status
	PaymentID      *string
	CreatedAt      time.Time
	VerifiedAt     *time.Time
}

// MinorUnits converts a rupee amount to paise.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
