// Package governance holds the owner-controlled parameters of a pool.
package governance

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolEngine/internal/formula"
)

var (
	ErrUnauthorized  = errors.New("caller is not the owner")
	ErrFeeOutOfRange = errors.New("fee out of range")
	ErrPoolPaused    = errors.New("pool is paused")
	ErrInvalidOwner  = errors.New("invalid owner")
)

// Governor tracks owner, fee and pause flag. Methods are safe for concurrent
// use; pools additionally serialize them behind their own lock.
type Governor struct {
	mu     sync.RWMutex
	owner  common.Address
	feeBps uint16
	paused bool
}

func New(owner common.Address, feeBps uint16) (*Governor, error) {
	if owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	if feeBps > formula.MaxFeeBps {
		return nil, fmt.Errorf("%w: %d > %d", ErrFeeOutOfRange, feeBps, formula.MaxFeeBps)
	}
	return &Governor{owner: owner, feeBps: feeBps}, nil
}

func (g *Governor) Owner() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

func (g *Governor) FeeBps() uint16 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feeBps
}

func (g *Governor) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// RequireActive fails with ErrPoolPaused while the pool is paused.
func (g *Governor) RequireActive() error {
	if g.Paused() {
		return ErrPoolPaused
	}
	return nil
}

func (g *Governor) SetFee(caller common.Address, feeBps uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return ErrUnauthorized
	}
	if feeBps > formula.MaxFeeBps {
		return fmt.Errorf("%w: %d > %d", ErrFeeOutOfRange, feeBps, formula.MaxFeeBps)
	}
	g.feeBps = feeBps
	return nil
}

func (g *Governor) Pause(caller common.Address) error {
	return g.setPaused(caller, true)
}

func (g *Governor) Unpause(caller common.Address) error {
	return g.setPaused(caller, false)
}

func (g *Governor) setPaused(caller common.Address, paused bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return ErrUnauthorized
	}
	g.paused = paused
	return nil
}

func (g *Governor) TransferOwnership(caller, newOwner common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return ErrUnauthorized
	}
	if newOwner == (common.Address{}) {
		return ErrInvalidOwner
	}
	g.owner = newOwner
	return nil
}
