// Package formula implements the constant-product swap output computation
// shared by transparent and confidential pools.
package formula

import (
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// BasisPoints is the fee denominator.
	BasisPoints = 10_000
	// MaxFeeBps caps the pool fee at 10%.
	MaxFeeBps uint16 = 1_000
)

var basisPoints = uint256.NewInt(BasisPoints)

// FeeAmount returns floor(amountIn * feeBps / 10000).
func FeeAmount(amountIn *uint256.Int, feeBps uint16) *uint256.Int {
	if amountIn == nil || amountIn.IsZero() || feeBps == 0 {
		return new(uint256.Int)
	}
	fee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(uint64(feeBps)))
	if overflow {
		wide := new(big.Int).Mul(amountIn.ToBig(), big.NewInt(int64(feeBps)))
		wide.Quo(wide, big.NewInt(BasisPoints))
		out, _ := uint256.FromBig(wide)
		return out
	}
	return fee.Div(fee, basisPoints)
}

// AmountInAfterFee returns amountIn minus its fee. A fee of 100% or more
// leaves nothing.
func AmountInAfterFee(amountIn *uint256.Int, feeBps uint16) *uint256.Int {
	if amountIn == nil || feeBps >= BasisPoints {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(amountIn, FeeAmount(amountIn, feeBps))
}

// Fraction returns the numerator and denominator of the swap output before
// the final floor division:
//
//	numerator   = amountInAfterFee * reserveOut
//	denominator = reserveIn + amountInAfterFee
//
// Values that do not fit in 256 bits are returned as big integers by
// FractionBig; Fraction reports overflow instead.
func Fraction(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint16) (numerator, denominator *uint256.Int, overflow bool) {
	afterFee := AmountInAfterFee(amountIn, feeBps)
	numerator, mulOverflow := new(uint256.Int).MulOverflow(afterFee, reserveOut)
	denominator, addOverflow := new(uint256.Int).AddOverflow(reserveIn, afterFee)
	return numerator, denominator, mulOverflow || addOverflow
}

// FractionBig is Fraction evaluated without a width limit.
func FractionBig(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint16) (numerator, denominator *big.Int) {
	afterFee := AmountInAfterFee(amountIn, feeBps).ToBig()
	numerator = new(big.Int).Mul(afterFee, reserveOut.ToBig())
	denominator = new(big.Int).Add(reserveIn.ToBig(), afterFee)
	return numerator, denominator
}

// ComputeOutput returns floor(afterFee * reserveOut / (reserveIn + afterFee)).
// It is total over non-negative inputs: an empty reserve, a zero input or a
// fee of 100% yields zero.
func ComputeOutput(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint16) *uint256.Int {
	if reserveIn == nil || reserveOut == nil || amountIn == nil {
		return new(uint256.Int)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || amountIn.IsZero() || feeBps >= BasisPoints {
		return new(uint256.Int)
	}

	numerator, denominator, overflow := Fraction(reserveIn, reserveOut, amountIn, feeBps)
	if !overflow {
		return numerator.Div(numerator, denominator)
	}

	// The quotient is strictly below reserveOut, so it always fits.
	wideNum, wideDen := FractionBig(reserveIn, reserveOut, amountIn, feeBps)
	out, _ := uint256.FromBig(wideNum.Quo(wideNum, wideDen))
	return out
}
