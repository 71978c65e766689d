package model

// EventKind names a committed pool operation.
type EventKind string

const (
	EventSwap                 EventKind = "swap"
	EventAddLiquidity         EventKind = "add_liquidity"
	EventRemoveLiquidity      EventKind = "remove_liquidity"
	EventFeeUpdated           EventKind = "fee_updated"
	EventPaused               EventKind = "paused"
	EventUnpaused             EventKind = "unpaused"
	EventOwnershipTransferred EventKind = "ownership_transferred"
)

// PoolEvent is the append-only record emitted after a committed operation.
// Confidential pools never populate plaintext amount fields.
type PoolEvent struct {
	Pool         string    `json:"pool"`
	Seq          uint64    `json:"seq"`
	Version      uint64    `json:"version"`
	Kind         EventKind `json:"kind"`
	Actor        string    `json:"actor"`
	AssetA       string    `json:"asset_a"`
	AssetB       string    `json:"asset_b"`
	Confidential bool      `json:"confidential"`
	Timestamp    uint64    `json:"timestamp"`

	Swap       *SwapEventData       `json:"swap,omitempty"`
	Liquidity  *LiquidityEventData  `json:"liquidity,omitempty"`
	Governance *GovernanceEventData `json:"governance,omitempty"`
}

// SwapEventData is the swap payload. Amount fields are decimal strings for
// transparent pools; handle fields are hex ciphertext handles for
// confidential pools.
type SwapEventData struct {
	Direction Direction `json:"direction"`
	AmountIn  string    `json:"amount_in,omitempty"`
	AmountOut string    `json:"amount_out,omitempty"`
	FeeAmount string    `json:"fee_amount,omitempty"`
	ReserveA  string    `json:"reserve_a,omitempty"`
	ReserveB  string    `json:"reserve_b,omitempty"`

	AmountInHandle  string `json:"amount_in_handle,omitempty"`
	AmountOutHandle string `json:"amount_out_handle,omitempty"`
}

// LiquidityEventData is the add/remove liquidity payload.
type LiquidityEventData struct {
	AmountA  string `json:"amount_a,omitempty"`
	AmountB  string `json:"amount_b,omitempty"`
	ReserveA string `json:"reserve_a,omitempty"`
	ReserveB string `json:"reserve_b,omitempty"`

	AmountAHandle string `json:"amount_a_handle,omitempty"`
	AmountBHandle string `json:"amount_b_handle,omitempty"`
}

// GovernanceEventData is the admin payload.
type GovernanceEventData struct {
	FeeBps   *uint16 `json:"fee_bps,omitempty"`
	NewOwner string  `json:"new_owner,omitempty"`
}
