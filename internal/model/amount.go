package model

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// FormatAmount renders an amount as a base-10 string; nil renders as "0".
func FormatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}

// ParseAmount parses a base-10 unsigned amount. Empty input is zero.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	value, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return value, nil
}
