package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolEngine/internal/formula"
	"poolEngine/internal/model"
)

// Transparent is a constant-product pool over plain reserves.
type Transparent struct {
	core
	ledger Ledger

	reserveA *uint256.Int
	reserveB *uint256.Int
}

// NewTransparent builds an empty pool settling against ledger.
func NewTransparent(cfg Config, ledger Ledger, events EventSink, logger *zap.Logger) (*Transparent, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", ErrInvalidConfig)
	}
	p := &Transparent{
		ledger:   ledger,
		reserveA: new(uint256.Int),
		reserveB: new(uint256.Int),
	}
	if err := p.core.init(cfg, false, events, logger); err != nil {
		return nil, err
	}
	return p, nil
}

// Reserves returns copies of the current reserves.
func (p *Transparent) Reserves() (*uint256.Int, *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.reserveA), new(uint256.Int).Set(p.reserveB)
}

// Snapshot returns a consistent view of the public pool state.
func (p *Transparent) Snapshot() model.PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.PoolSnapshot{
		Address:     p.address.Hex(),
		AssetA:      p.assetA.Hex(),
		AssetB:      p.assetB.Hex(),
		ReserveA:    model.FormatAmount(p.reserveA),
		ReserveB:    model.FormatAmount(p.reserveB),
		Initialized: !p.reserveA.IsZero() && !p.reserveB.IsZero(),
		FeeBps:      p.gov.FeeBps(),
		Paused:      p.gov.Paused(),
		Owner:       p.gov.Owner().Hex(),
		Version:     p.version,
	}
}

// Quote returns the output a swap of amountIn would produce right now. It
// does not lock and does not mutate; it is available while paused.
func (p *Transparent) Quote(direction model.Direction, amountIn *uint256.Int) (*uint256.Int, error) {
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}
	p.mu.RLock()
	reserveIn, reserveOut := p.sides(direction)
	feeBps := p.gov.FeeBps()
	p.mu.RUnlock()
	return formula.ComputeOutput(reserveIn, reserveOut, amountIn, feeBps), nil
}

// Swap sells amountIn of the input asset for at least minAmountOut of the
// output asset. The whole input, fee included, stays in the pool.
func (p *Transparent) Swap(ctx context.Context, caller common.Address, direction model.Direction, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error) {
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidAmount)
	}
	if minAmountOut == nil {
		minAmountOut = new(uint256.Int)
	}

	var amountOut *uint256.Int
	err := p.lock.Do(ctx, func(ctx context.Context) error {
		if err := p.gov.RequireActive(); err != nil {
			return err
		}

		p.mu.RLock()
		reserveIn, reserveOut := p.sides(direction)
		feeBps := p.gov.FeeBps()
		p.mu.RUnlock()

		if reserveIn.IsZero() || reserveOut.IsZero() {
			return ErrInsufficientLiquidity
		}
		out := formula.ComputeOutput(reserveIn, reserveOut, amountIn, feeBps)
		if out.IsZero() {
			return fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
		}
		if out.Lt(minAmountOut) {
			return fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, out, minAmountOut)
		}
		newIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
		if overflow {
			return fmt.Errorf("%w: reserve overflow", ErrInvalidAmount)
		}
		newOut := new(uint256.Int).Sub(reserveOut, out)

		assetIn, assetOut := p.assets(direction)
		if err := p.ledger.Pull(ctx, assetIn, p.address, caller, amountIn); err != nil {
			return fmt.Errorf("pull %s: %w", assetIn.Hex(), err)
		}
		if err := p.ledger.Push(ctx, assetOut, p.address, caller, out); err != nil {
			p.refund(ctx, assetIn, caller, amountIn)
			return fmt.Errorf("push %s: %w", assetOut.Hex(), err)
		}

		p.mu.Lock()
		if direction == model.AToB {
			p.reserveA, p.reserveB = newIn, newOut
		} else {
			p.reserveA, p.reserveB = newOut, newIn
		}
		p.version++
		version := p.version
		reserveA, reserveB := model.FormatAmount(p.reserveA), model.FormatAmount(p.reserveB)
		p.mu.Unlock()

		amountOut = out
		p.logger.Debug("swap",
			zap.String("caller", caller.Hex()),
			zap.Stringer("direction", direction),
			zap.Stringer("amount_in", amountIn),
			zap.Stringer("amount_out", out),
			zap.Uint64("version", version),
		)
		p.emit(ctx, model.PoolEvent{
			Kind:    model.EventSwap,
			Actor:   caller.Hex(),
			Version: version,
			Swap: &model.SwapEventData{
				Direction: direction,
				AmountIn:  model.FormatAmount(amountIn),
				AmountOut: model.FormatAmount(out),
				FeeAmount: model.FormatAmount(formula.FeeAmount(amountIn, feeBps)),
				ReserveA:  reserveA,
				ReserveB:  reserveB,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// AddLiquidity deposits both assets. Any ratio is accepted; the first
// deposit initializes the pool.
func (p *Transparent) AddLiquidity(ctx context.Context, caller common.Address, amountA, amountB *uint256.Int) error {
	if amountA == nil || amountB == nil || amountA.IsZero() || amountB.IsZero() {
		return fmt.Errorf("%w: both amounts must be positive", ErrInvalidAmount)
	}

	return p.lock.Do(ctx, func(ctx context.Context) error {
		if err := p.gov.RequireActive(); err != nil {
			return err
		}

		p.mu.RLock()
		newA, overflowA := new(uint256.Int).AddOverflow(p.reserveA, amountA)
		newB, overflowB := new(uint256.Int).AddOverflow(p.reserveB, amountB)
		p.mu.RUnlock()
		if overflowA || overflowB {
			return fmt.Errorf("%w: reserve overflow", ErrInvalidAmount)
		}

		if err := p.ledger.Pull(ctx, p.assetA, p.address, caller, amountA); err != nil {
			return fmt.Errorf("pull %s: %w", p.assetA.Hex(), err)
		}
		if err := p.ledger.Pull(ctx, p.assetB, p.address, caller, amountB); err != nil {
			p.refund(ctx, p.assetA, caller, amountA)
			return fmt.Errorf("pull %s: %w", p.assetB.Hex(), err)
		}

		version := p.commit(newA, newB)
		p.logger.Debug("add liquidity",
			zap.String("caller", caller.Hex()),
			zap.Stringer("amount_a", amountA),
			zap.Stringer("amount_b", amountB),
			zap.Uint64("version", version),
		)
		p.emit(ctx, model.PoolEvent{
			Kind:    model.EventAddLiquidity,
			Actor:   caller.Hex(),
			Version: version,
			Liquidity: &model.LiquidityEventData{
				AmountA:  model.FormatAmount(amountA),
				AmountB:  model.FormatAmount(amountB),
				ReserveA: model.FormatAmount(newA),
				ReserveB: model.FormatAmount(newB),
			},
		})
		return nil
	})
}

// RemoveLiquidity withdraws both assets. Emptying exactly one side is
// rejected; emptying both returns the pool to its uninitialized state.
func (p *Transparent) RemoveLiquidity(ctx context.Context, caller common.Address, amountA, amountB *uint256.Int) error {
	if amountA == nil || amountB == nil || amountA.IsZero() || amountB.IsZero() {
		return fmt.Errorf("%w: both amounts must be positive", ErrInvalidAmount)
	}

	return p.lock.Do(ctx, func(ctx context.Context) error {
		if err := p.gov.RequireActive(); err != nil {
			return err
		}

		p.mu.RLock()
		reserveA, reserveB := new(uint256.Int).Set(p.reserveA), new(uint256.Int).Set(p.reserveB)
		p.mu.RUnlock()

		if reserveA.Lt(amountA) || reserveB.Lt(amountB) {
			return fmt.Errorf("%w: withdrawal exceeds reserves", ErrInsufficientLiquidity)
		}
		if reserveA.Eq(amountA) != reserveB.Eq(amountB) {
			return fmt.Errorf("%w: withdrawal would empty one side", ErrInsufficientLiquidity)
		}

		if err := p.ledger.Push(ctx, p.assetA, p.address, caller, amountA); err != nil {
			return fmt.Errorf("push %s: %w", p.assetA.Hex(), err)
		}
		if err := p.ledger.Push(ctx, p.assetB, p.address, caller, amountB); err != nil {
			if rerr := p.ledger.Pull(ctx, p.assetA, p.address, caller, amountA); rerr != nil {
				p.logger.Error("reclaim after failed push", zap.String("asset", p.assetA.Hex()), zap.Stringer("amount", amountA), zap.Error(rerr))
			}
			return fmt.Errorf("push %s: %w", p.assetB.Hex(), err)
		}

		newA := reserveA.Sub(reserveA, amountA)
		newB := reserveB.Sub(reserveB, amountB)
		version := p.commit(newA, newB)
		p.logger.Debug("remove liquidity",
			zap.String("caller", caller.Hex()),
			zap.Stringer("amount_a", amountA),
			zap.Stringer("amount_b", amountB),
			zap.Uint64("version", version),
		)
		p.emit(ctx, model.PoolEvent{
			Kind:    model.EventRemoveLiquidity,
			Actor:   caller.Hex(),
			Version: version,
			Liquidity: &model.LiquidityEventData{
				AmountA:  model.FormatAmount(amountA),
				AmountB:  model.FormatAmount(amountB),
				ReserveA: model.FormatAmount(newA),
				ReserveB: model.FormatAmount(newB),
			},
		})
		return nil
	})
}

// sides returns copies of the (in, out) reserves. Callers hold p.mu.
func (p *Transparent) sides(direction model.Direction) (*uint256.Int, *uint256.Int) {
	if direction == model.BToA {
		return new(uint256.Int).Set(p.reserveB), new(uint256.Int).Set(p.reserveA)
	}
	return new(uint256.Int).Set(p.reserveA), new(uint256.Int).Set(p.reserveB)
}

func (p *Transparent) commit(reserveA, reserveB *uint256.Int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserveA, p.reserveB = reserveA, reserveB
	p.version++
	return p.version
}

// refund returns a pulled amount after a later step failed.
func (p *Transparent) refund(ctx context.Context, asset, to common.Address, amount *uint256.Int) {
	if err := p.ledger.Push(ctx, asset, p.address, to, amount); err != nil {
		p.logger.Error("refund failed", zap.String("asset", asset.Hex()), zap.String("to", to.Hex()), zap.Stringer("amount", amount), zap.Error(err))
	}
}
