package aggregate

import (
	"math/big"
	"time"
)

const ratioScale = 18

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func computeFeeRates(feeA *big.Int, feeB *big.Int, reserveA *big.Int, reserveB *big.Int) (*string, *string) {
	var feeRateA *string
	var feeRateB *string

	if rate := computeRateFromInt(feeA, reserveA); rate != "" {
		feeRateA = &rate
	}
	if rate := computeRateFromInt(feeB, reserveB); rate != "" {
		feeRateB = &rate
	}
	return feeRateA, feeRateB
}

func computeRateFromInt(fee *big.Int, reserve *big.Int) string {
	if fee == nil || fee.Sign() == 0 || reserve == nil || reserve.Sign() == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(fee, reserve)
	return rat.FloatString(ratioScale)
}

// computeAPR annualizes the window fee yield. Fees on both sides are valued
// at the closing pool price, where each reserve is half the pool value, so
// the combined rate is the mean of the per-side rates.
func computeAPR(feeRateA *string, feeRateB *string, windowSeconds uint64) *string {
	if windowSeconds == 0 || (feeRateA == nil && feeRateB == nil) {
		return nil
	}

	total := new(big.Rat)
	for _, rate := range []*string{feeRateA, feeRateB} {
		if rate == nil {
			continue
		}
		parsed, ok := new(big.Rat).SetString(*rate)
		if !ok {
			return nil
		}
		total.Add(total, parsed)
	}
	total.Quo(total, big.NewRat(2, 1))

	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(total, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(ratioScale)
	return &val
}
