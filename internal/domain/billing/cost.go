package billing

import (
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for every amount
const MoneyScale = 2

// ErrInvalidCostInput is returned for a negative price or a non-positive player count
var ErrInvalidCostInput = shared.NewValidationError("INVALID_COST_INPUT", "Unit price must be non-negative and player count positive")

// ComputeTotalCost multiplies first and rounds once, half away from zero
func ComputeTotalCost(unitPrice decimal.Decimal, playerCount int) (decimal.Decimal, error) {
	if unitPrice.IsNegative() || playerCount <= 0 {
		return decimal.Zero, ErrInvalidCostInput
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(playerCount))).Round(MoneyScale), nil
}
