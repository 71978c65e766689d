// Package ledger provides in-memory token ledgers exposing the pull/push
// primitives pools settle against, plus a mint capability for faucets.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAccessDenied        = errors.New("amount not granted to operator")
)

// Ledger holds plain balances per asset.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*uint256.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*uint256.Int)}
}

// Mint credits amount of asset to the recipient.
func (l *Ledger) Mint(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balance(asset, to)
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("%w: mint overflows balance", ErrInvalidAmount)
	}
	bal.Set(sum)
	return nil
}

func (l *Ledger) BalanceOf(asset, owner common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balance(asset, owner))
}

// Pull moves amount of asset from the owner to the spender.
func (l *Ledger) Pull(ctx context.Context, asset, spender, from common.Address, amount *uint256.Int) error {
	return l.transfer(ctx, asset, from, spender, amount)
}

// Push moves amount of asset from the sender to the recipient.
func (l *Ledger) Push(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	return l.transfer(ctx, asset, from, to, amount)
}

func (l *Ledger) transfer(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balance(asset, from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src, amount)
	}
	dst := l.balance(asset, to)
	sum, overflow := new(uint256.Int).AddOverflow(dst, amount)
	if overflow {
		return fmt.Errorf("%w: transfer overflows balance", ErrInvalidAmount)
	}
	src.Sub(src, amount)
	dst.Set(sum)
	return nil
}

func (l *Ledger) balance(asset, owner common.Address) *uint256.Int {
	byOwner, ok := l.balances[asset]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		l.balances[asset] = byOwner
	}
	bal, ok := byOwner[owner]
	if !ok {
		bal = new(uint256.Int)
		byOwner[owner] = bal
	}
	return bal
}
