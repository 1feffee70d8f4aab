package domain

import "fmt"

// All monetary amounts in this package are int64 paisa (minor units of
// PKR). Integer math keeps the ledger exact; the single rounding rule
// for per-view charges is integer floor (ties round down).

// PaisaPerRupee is the minor-unit factor for PKR.
const PaisaPerRupee = 100

// CPV rates in paisa per 100 qualified views, by graduation tier.
const (
	RateStarterPer100  int64 = 1000 // Rs 10
	RateGrowthPer100   int64 = 2000 // Rs 20
	RateStandardPer100 int64 = 3000 // Rs 30
)

// CPVRatePer100 returns the paisa-per-100-views rate for a tier.
// Unknown tiers fall back to starter so a bad row never over-bills.
func CPVRatePer100(tier string) int64 {
	switch tier {
	case TierStandard:
		return RateStandardPer100
	case TierGrowth:
		return RateGrowthPer100
	default:
		return RateStarterPer100
	}
}

// PerViewCharge floors the per-100 rate down to a single view.
func PerViewCharge(ratePer100 int64) int64 {
	return ratePer100 / 100
}

// FormatPaisa renders an amount as a rupee string, e.g. 1050 -> "10.50".
func FormatPaisa(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/PaisaPerRupee, amount%PaisaPerRupee)
}
