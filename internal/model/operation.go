package model

// OpKind names a replayable pool operation.
type OpKind string

const (
	OpMint              OpKind = "mint"
	OpAddLiquidity      OpKind = "add_liquidity"
	OpRemoveLiquidity   OpKind = "remove_liquidity"
	OpSwap              OpKind = "swap"
	OpQuote             OpKind = "quote"
	OpSetFee            OpKind = "set_fee"
	OpPause             OpKind = "pause"
	OpUnpause           OpKind = "unpause"
	OpTransferOwnership OpKind = "transfer_ownership"
)

// Operation is one line of a replay input file.
type Operation struct {
	Op           OpKind    `json:"op"`
	Caller       string    `json:"caller"`
	Asset        string    `json:"asset,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	AmountA      string    `json:"amount_a,omitempty"`
	AmountB      string    `json:"amount_b,omitempty"`
	Direction    Direction `json:"direction,omitempty"`
	AmountIn     string    `json:"amount_in,omitempty"`
	MinAmountOut string    `json:"min_amount_out,omitempty"`
	FeeBps       uint16    `json:"fee_bps,omitempty"`
	NewOwner     string    `json:"new_owner,omitempty"`
}

// OperationError records a failed replay operation.
type OperationError struct {
	Line   int    `json:"line"`
	Op     OpKind `json:"op"`
	Caller string `json:"caller"`
	Error  string `json:"error"`
}
