// Package pool implements the constant-product settlement engine in two
// variants: Transparent, over plain integer reserves, and Confidential, over
// ciphertext handles.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolEngine/internal/fhe"
	"poolEngine/internal/formula"
	"poolEngine/internal/governance"
	"poolEngine/internal/guard"
	"poolEngine/internal/model"
)

// DefaultQuoteTTL bounds how long a confidential quote can be redeemed.
const DefaultQuoteTTL = 2 * time.Minute

// Ledger moves plain token amounts. Pull debits the owner and credits the
// spender; Push debits the sender and credits the recipient.
type Ledger interface {
	Pull(ctx context.Context, asset, spender, from common.Address, amount *uint256.Int) error
	Push(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error
}

// ConfidentialLedger moves encrypted amounts. Transfers move either the full
// amount or zero and return a handle to what was moved. Address is the
// operator principal that must be granted every amount it is handed.
type ConfidentialLedger interface {
	Pull(ctx context.Context, asset, spender, from common.Address, amount common.Hash) (common.Hash, error)
	Push(ctx context.Context, asset, from, to common.Address, amount common.Hash) (common.Hash, error)
	Address() common.Address
}

// Evaluator is the ciphertext arithmetic a confidential pool relies on. It
// offers no decryption.
type Evaluator interface {
	formula.Arithmetic
	TrivialEncrypt(value *uint256.Int) common.Hash
	TypeOf(h common.Hash) (fhe.Type, bool)
	Eq(lhs, rhs common.Hash) (common.Hash, error)
	Ge(lhs, rhs common.Hash) (common.Hash, error)
	Le(lhs, rhs common.Hash) (common.Hash, error)
	Lt(lhs, rhs common.Hash) (common.Hash, error)
	And(lhs, rhs common.Hash) (common.Hash, error)
	Select(cond, ifTrue, ifFalse common.Hash) (common.Hash, error)
}

// PermissionLedger records which principal may decrypt which handle.
type PermissionLedger interface {
	Grant(handle common.Hash, principals ...common.Address)
	IsGranted(handle common.Hash, principal common.Address) bool
}

// EventSink receives committed pool events.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.PoolEvent) error
}

// Config holds the immutable pool identity and initial governance state.
type Config struct {
	Address  common.Address
	AssetA   common.Address
	AssetB   common.Address
	Owner    common.Address
	FeeBps   uint16
	QuoteTTL time.Duration
	Now      func() time.Time
}

func (c Config) validate() error {
	zero := common.Address{}
	if c.Address == zero {
		return fmt.Errorf("%w: pool address is required", ErrInvalidConfig)
	}
	if c.AssetA == zero || c.AssetB == zero {
		return fmt.Errorf("%w: both assets are required", ErrInvalidConfig)
	}
	if c.AssetA == c.AssetB {
		return fmt.Errorf("%w: assets must differ", ErrInvalidConfig)
	}
	return nil
}

// core carries what both variants share: identity, governance, the
// mutation lock and the version counter.
type core struct {
	address      common.Address
	assetA       common.Address
	assetB       common.Address
	confidential bool

	gov    *governance.Governor
	lock   guard.Lock
	events EventSink
	logger *zap.Logger
	now    func() time.Time

	// mu guards reserves and version in the embedding type; it is only
	// written at commit, while lock is held.
	mu      sync.RWMutex
	version uint64

	// seq numbers emitted events; only touched while lock is held.
	seq uint64
}

// init fills c in place; core holds locks and must not be copied.
func (c *core) init(cfg Config, confidential bool, events EventSink, logger *zap.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	gov, err := governance.New(cfg.Owner, cfg.FeeBps)
	if err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c.address = cfg.Address
	c.assetA = cfg.AssetA
	c.assetB = cfg.AssetB
	c.confidential = confidential
	c.gov = gov
	c.events = events
	c.logger = logger.With(zap.String("pool", cfg.Address.Hex()))
	c.now = now
	return nil
}

func (c *core) Address() common.Address { return c.address }

func (c *core) Assets() (common.Address, common.Address) { return c.assetA, c.assetB }

func (c *core) Owner() common.Address { return c.gov.Owner() }

func (c *core) Paused() bool { return c.gov.Paused() }

func (c *core) FeeBps() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gov.FeeBps()
}

// Version increases on every committed change to reserves or fee.
func (c *core) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SetFee updates the fee. Outstanding confidential quotes become stale.
func (c *core) SetFee(ctx context.Context, caller common.Address, feeBps uint16) error {
	return c.lock.Do(ctx, func(ctx context.Context) error {
		c.mu.Lock()
		if err := c.gov.SetFee(caller, feeBps); err != nil {
			c.mu.Unlock()
			return err
		}
		c.version++
		version := c.version
		c.mu.Unlock()

		c.logger.Info("fee updated", zap.Uint16("fee_bps", feeBps), zap.Uint64("version", version))
		fee := feeBps
		c.emit(ctx, model.PoolEvent{
			Kind:       model.EventFeeUpdated,
			Actor:      caller.Hex(),
			Version:    version,
			Governance: &model.GovernanceEventData{FeeBps: &fee},
		})
		return nil
	})
}

func (c *core) Pause(ctx context.Context, caller common.Address) error {
	return c.lock.Do(ctx, func(ctx context.Context) error {
		if err := c.gov.Pause(caller); err != nil {
			return err
		}
		c.logger.Info("pool paused")
		c.emit(ctx, model.PoolEvent{Kind: model.EventPaused, Actor: caller.Hex(), Version: c.Version()})
		return nil
	})
}

func (c *core) Unpause(ctx context.Context, caller common.Address) error {
	return c.lock.Do(ctx, func(ctx context.Context) error {
		if err := c.gov.Unpause(caller); err != nil {
			return err
		}
		c.logger.Info("pool unpaused")
		c.emit(ctx, model.PoolEvent{Kind: model.EventUnpaused, Actor: caller.Hex(), Version: c.Version()})
		return nil
	})
}

func (c *core) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return c.lock.Do(ctx, func(ctx context.Context) error {
		if err := c.gov.TransferOwnership(caller, newOwner); err != nil {
			return err
		}
		c.logger.Info("ownership transferred", zap.String("owner", newOwner.Hex()))
		c.emit(ctx, model.PoolEvent{
			Kind:       model.EventOwnershipTransferred,
			Actor:      caller.Hex(),
			Version:    c.Version(),
			Governance: &model.GovernanceEventData{NewOwner: newOwner.Hex()},
		})
		return nil
	})
}

// assets returns the (in, out) asset pair for a direction.
func (c *core) assets(direction model.Direction) (common.Address, common.Address) {
	if direction == model.BToA {
		return c.assetB, c.assetA
	}
	return c.assetA, c.assetB
}

// emit publishes a committed event. A sink failure is logged; the state
// change stands.
func (c *core) emit(ctx context.Context, event model.PoolEvent) {
	if c.events == nil {
		return
	}
	c.seq++
	event.Seq = c.seq
	event.Pool = c.address.Hex()
	event.AssetA = c.assetA.Hex()
	event.AssetB = c.assetB.Hex()
	event.Confidential = c.confidential
	event.Timestamp = uint64(c.now().Unix())
	if err := c.events.PutEvents(ctx, []model.PoolEvent{event}); err != nil {
		c.logger.Error("emit event", zap.String("kind", string(event.Kind)), zap.Uint64("version", event.Version), zap.Error(err))
	}
}
