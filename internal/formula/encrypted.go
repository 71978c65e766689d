package formula

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Arithmetic is the subset of homomorphic operations the encrypted formula
// needs. Handles are opaque ciphertext references.
type Arithmetic interface {
	Add(lhs, rhs common.Hash) (common.Hash, error)
	Sub(lhs, rhs common.Hash) (common.Hash, error)
	Mul(lhs, rhs common.Hash) (common.Hash, error)
	ScalarMul(ct common.Hash, scalar *uint256.Int) (common.Hash, error)
	ScalarDiv(ct common.Hash, scalar *uint256.Int) (common.Hash, error)
}

// Encrypted evaluates Fraction over ciphertexts. Division by an encrypted
// value is not available, so the quotient is left to the holder of the
// decryption rights.
func Encrypted(ev Arithmetic, reserveIn, reserveOut, amountIn common.Hash, feeBps uint16) (numerator, denominator common.Hash, err error) {
	if feeBps >= BasisPoints {
		return common.Hash{}, common.Hash{}, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	fee, err := encryptedFee(ev, amountIn, feeBps)
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	afterFee, err := ev.Sub(amountIn, fee)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("subtract fee: %w", err)
	}

	numerator, err = ev.Mul(afterFee, reserveOut)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("numerator: %w", err)
	}
	denominator, err = ev.Add(reserveIn, afterFee)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("denominator: %w", err)
	}
	return numerator, denominator, nil
}

// encryptedFee returns floor(amountIn*feeBps/10000) without forming the
// product, which could wrap. With amountIn = q*10000 + r the fee is
// q*feeBps + floor(r*feeBps/10000), and every intermediate fits in 256 bits.
func encryptedFee(ev Arithmetic, amountIn common.Hash, feeBps uint16) (common.Hash, error) {
	fee := uint256.NewInt(uint64(feeBps))
	q, err := ev.ScalarDiv(amountIn, basisPoints)
	if err != nil {
		return common.Hash{}, fmt.Errorf("split amount: %w", err)
	}
	whole, err := ev.ScalarMul(q, basisPoints)
	if err != nil {
		return common.Hash{}, fmt.Errorf("split amount: %w", err)
	}
	r, err := ev.Sub(amountIn, whole)
	if err != nil {
		return common.Hash{}, fmt.Errorf("split amount: %w", err)
	}
	high, err := ev.ScalarMul(q, fee)
	if err != nil {
		return common.Hash{}, fmt.Errorf("scale fee: %w", err)
	}
	scaled, err := ev.ScalarMul(r, fee)
	if err != nil {
		return common.Hash{}, fmt.Errorf("scale fee: %w", err)
	}
	low, err := ev.ScalarDiv(scaled, basisPoints)
	if err != nil {
		return common.Hash{}, fmt.Errorf("divide fee: %w", err)
	}
	total, err := ev.Add(high, low)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sum fee: %w", err)
	}
	return total, nil
}
