package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Evaluator is the ciphertext arithmetic the confidential ledger needs.
type Evaluator interface {
	TrivialEncrypt(value *uint256.Int) common.Hash
	Add(lhs, rhs common.Hash) (common.Hash, error)
	Sub(lhs, rhs common.Hash) (common.Hash, error)
	Ge(lhs, rhs common.Hash) (common.Hash, error)
	Select(cond, ifTrue, ifFalse common.Hash) (common.Hash, error)
}

// Grants is the permission ledger shared with the evaluator.
type Grants interface {
	Grant(handle common.Hash, principals ...common.Address)
	IsGranted(handle common.Hash, principal common.Address) bool
}

// ConfidentialLedger holds encrypted balances. Transfers never fail on an
// insufficient balance: they move either the full amount or zero, and
// return a handle to what was moved.
type ConfidentialLedger struct {
	address common.Address
	ev      Evaluator
	grants  Grants

	mu       sync.Mutex
	balances map[common.Address]map[common.Address]common.Hash
}

// NewConfidential builds a ledger operating as the given address.
func NewConfidential(address common.Address, ev Evaluator, grants Grants) *ConfidentialLedger {
	return &ConfidentialLedger{
		address:  address,
		ev:       ev,
		grants:   grants,
		balances: make(map[common.Address]map[common.Address]common.Hash),
	}
}

// Address is the operator principal that must be granted transfer amounts.
func (l *ConfidentialLedger) Address() common.Address {
	return l.address
}

// Mint credits a public amount to the recipient.
func (l *ConfidentialLedger) Mint(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	credited, err := l.ev.Add(l.balance(asset, to), l.ev.TrivialEncrypt(amount))
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	l.setBalance(asset, to, credited)
	return nil
}

// BalanceOf returns the owner's balance handle. Only the owner and the
// ledger can decrypt it.
func (l *ConfidentialLedger) BalanceOf(asset, owner common.Address) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(asset, owner)
}

// Pull moves up to amount from the owner to the spender, which must hold a
// grant on amount.
func (l *ConfidentialLedger) Pull(ctx context.Context, asset, spender, from common.Address, amount common.Hash) (common.Hash, error) {
	return l.transfer(ctx, asset, spender, from, spender, amount)
}

// Push moves up to amount from the sender, which must hold a grant on
// amount, to the recipient.
func (l *ConfidentialLedger) Push(ctx context.Context, asset, from, to common.Address, amount common.Hash) (common.Hash, error) {
	return l.transfer(ctx, asset, from, from, to, amount)
}

func (l *ConfidentialLedger) transfer(ctx context.Context, asset, operator, from, to common.Address, amount common.Hash) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if amount == (common.Hash{}) {
		return common.Hash{}, ErrInvalidAmount
	}
	if !l.grants.IsGranted(amount, operator) || !l.grants.IsGranted(amount, l.address) {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrAccessDenied, amount.Hex())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balance(asset, from)
	enough, err := l.ev.Ge(src, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("compare balance: %w", err)
	}
	moved, err := l.ev.Select(enough, amount, l.ev.TrivialEncrypt(new(uint256.Int)))
	if err != nil {
		return common.Hash{}, fmt.Errorf("select amount: %w", err)
	}
	debited, err := l.ev.Sub(src, moved)
	if err != nil {
		return common.Hash{}, fmt.Errorf("debit: %w", err)
	}
	credited, err := l.ev.Add(l.balance(asset, to), moved)
	if err != nil {
		return common.Hash{}, fmt.Errorf("credit: %w", err)
	}

	l.setBalance(asset, from, debited)
	l.setBalance(asset, to, credited)
	l.grants.Grant(moved, operator, from, to, l.address)
	return moved, nil
}

// balance returns the current handle, materializing an encrypted zero for
// accounts never seen before.
func (l *ConfidentialLedger) balance(asset, owner common.Address) common.Hash {
	byOwner, ok := l.balances[asset]
	if !ok {
		byOwner = make(map[common.Address]common.Hash)
		l.balances[asset] = byOwner
	}
	h, ok := byOwner[owner]
	if !ok {
		h = l.ev.TrivialEncrypt(new(uint256.Int))
		byOwner[owner] = h
		l.grants.Grant(h, owner, l.address)
	}
	return h
}

func (l *ConfidentialLedger) setBalance(asset, owner common.Address, h common.Hash) {
	l.balances[asset][owner] = h
	l.grants.Grant(h, owner, l.address)
}
