package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// RentalDays returns the number of whole days between start and end.
// Partial days are truncated: 25 hours is one day.
func RentalDays(start, end time.Time) int {
	return int(end.Sub(start) / day)
}

// CostScale is the number of fractional digits a stored total keeps.
const CostScale = 2

// TotalCost returns sum(unitCosts) * days rounded half away from zero to
// CostScale digits, the precision the total_cost column stores.
func TotalCost(unitCosts []decimal.Decimal, days int) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range unitCosts {
		sum = sum.Add(c)
	}
	return sum.Mul(decimal.NewFromInt(int64(days))).Round(CostScale)
}
