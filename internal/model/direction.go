package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction selects which reserve is the input side of a swap.
type Direction uint8

const (
	AToB Direction = iota + 1
	BToA
)

// ParseDirection accepts "a_to_b" / "b_to_a" (case-insensitive, '-' allowed).
func ParseDirection(input string) (Direction, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(input)), "-", "_") {
	case "a_to_b", "atob":
		return AToB, nil
	case "b_to_a", "btoa":
		return BToA, nil
	default:
		return 0, fmt.Errorf("invalid direction: %q", input)
	}
}

func (d Direction) Valid() bool {
	return d == AToB || d == BToA
}

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// MarshalJSON encodes the direction by name.
func (d Direction) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a direction name.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
