package model

import "time"

// PoolWindowMetrics stores aggregated swap metrics for a pool window.
type PoolWindowMetrics struct {
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	VolumeA        string
	VolumeB        string
	FeeA           string
	FeeB           string
	FeeRateA       *string
	FeeRateB       *string
	ReserveA       *string
	ReserveB       *string
	APR            *string
	Confidential   bool
}
