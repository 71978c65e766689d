package aggregate

import (
	"fmt"
	"math/big"

	"poolEngine/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PoolAddress  string
	AssetA       string
	AssetB       string
	Confidential bool
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	VolumeA      *big.Int
	VolumeB      *big.Int
	FeeA         *big.Int
	FeeB         *big.Int
	ReserveA     *big.Int
	ReserveB     *big.Int
	FirstVersion uint64
	LastSeq      uint64
	LastTS       uint64
}

func NewAccumulator(event model.PoolEvent, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress:  event.Pool,
		AssetA:       event.AssetA,
		AssetB:       event.AssetB,
		Confidential: event.Confidential,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		VolumeA:      big.NewInt(0),
		VolumeB:      big.NewInt(0),
		FeeA:         big.NewInt(0),
		FeeB:         big.NewInt(0),
		FirstVersion: event.Version,
		LastSeq:      event.Seq,
		LastTS:       event.Timestamp,
	}
}

// AddEvent folds one pool event into the window. Reserves track the event
// with the highest sequence number seen.
func (a *Accumulator) AddEvent(event model.PoolEvent) error {
	latest := event.Seq >= a.LastSeq
	if latest {
		a.LastSeq = event.Seq
		a.LastTS = event.Timestamp
	}
	if event.Version < a.FirstVersion {
		a.FirstVersion = event.Version
	}

	switch event.Kind {
	case model.EventSwap:
		if event.Swap == nil {
			return fmt.Errorf("swap event %d without payload", event.Seq)
		}
		return a.applySwap(*event.Swap, latest)
	case model.EventAddLiquidity, model.EventRemoveLiquidity:
		if event.Liquidity == nil {
			return fmt.Errorf("%s event %d without payload", event.Kind, event.Seq)
		}
		if a.Confidential || !latest {
			return nil
		}
		return a.setReserves(event.Liquidity.ReserveA, event.Liquidity.ReserveB)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData, latest bool) error {
	a.SwapCount++
	if a.Confidential {
		return nil
	}

	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	fee, err := parseBigInt(swap.FeeAmount)
	if err != nil {
		return err
	}

	switch swap.Direction {
	case model.AToB:
		a.VolumeA.Add(a.VolumeA, amountIn)
		a.FeeA.Add(a.FeeA, fee)
	case model.BToA:
		a.VolumeB.Add(a.VolumeB, amountIn)
		a.FeeB.Add(a.FeeB, fee)
	default:
		return fmt.Errorf("invalid swap direction %s", swap.Direction)
	}

	if !latest {
		return nil
	}
	return a.setReserves(swap.ReserveA, swap.ReserveB)
}

func (a *Accumulator) setReserves(reserveA, reserveB string) error {
	if reserveA == "" || reserveB == "" {
		return nil
	}
	ra, err := parseBigInt(reserveA)
	if err != nil {
		return err
	}
	rb, err := parseBigInt(reserveB)
	if err != nil {
		return err
	}
	a.ReserveA, a.ReserveB = ra, rb
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
