// README: Common money helpers used across modules.
package types

import "github.com/shopspring/decimal"

const Currency = "INR"

// LineTotal returns price × qty.
func LineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}
