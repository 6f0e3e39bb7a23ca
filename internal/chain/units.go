package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToUnits converts a dollar amount into token base units, truncating any
// precision beyond the token's decimals.
func ToUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromUnits converts token base units into a dollar amount.
func FromUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}
