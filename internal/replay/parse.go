package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"poolEngine/internal/model"
)

// ParseAddress parses a single non-zero hex address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	data, err := hexutil.Decode(input)
	if err != nil || len(data) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	addr := common.BytesToAddress(data)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address: %q", input)
	}
	return addr, nil
}

func parseAmount(field, input string) (*uint256.Int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	value, err := model.ParseAmount(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return value, nil
}
