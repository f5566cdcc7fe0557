package postgres

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Amounts are stored as NUMERIC(78, 0), wide enough for any uint256.

func toNumeric(v *uint256.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.RequireFromString(v.Dec())
}

func fromNumeric(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("stored amount %s is not an unsigned integer", d.String())
	}
	v, err := uint256.FromDecimal(d.StringFixed(0))
	if err != nil {
		return nil, fmt.Errorf("stored amount %s: %w", d.String(), err)
	}
	return v, nil
}
