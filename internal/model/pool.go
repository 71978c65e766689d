package model

// Pool represents pool registration metadata for storage.
type Pool struct {
	Address      string `json:"address"`
	AssetA       string `json:"asset_a"`
	AssetB       string `json:"asset_b"`
	Confidential bool   `json:"confidential"`
	FirstVersion uint64 `json:"first_version"`
}

// PoolSnapshot is a consistent read of a pool's public state. Reserve fields
// hold decimals for transparent pools and ciphertext handles for
// confidential ones.
type PoolSnapshot struct {
	Address      string `json:"address"`
	AssetA       string `json:"asset_a"`
	AssetB       string `json:"asset_b"`
	Confidential bool   `json:"confidential"`
	ReserveA     string `json:"reserve_a"`
	ReserveB     string `json:"reserve_b"`
	Initialized  bool   `json:"initialized"`
	FeeBps       uint16 `json:"fee_bps"`
	Paused       bool   `json:"paused"`
	Owner        string `json:"owner"`
	Version      uint64 `json:"version"`
}

// TokenMeta captures ERC20 metadata of a pool asset.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
