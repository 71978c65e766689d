package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolEngine/internal/fhe"
	"poolEngine/internal/formula"
	"poolEngine/internal/model"
)

// SwapRequest redeems a quote ticket. ExpectedOut is the caller's decrypted
// floor(numerator/denominator), re-encrypted; MinOut is their slippage bound.
type SwapRequest struct {
	QuoteID     common.Hash
	Direction   model.Direction
	AmountIn    common.Hash
	ExpectedOut common.Hash
	MinOut      common.Hash
}

// SwapReceipt holds the amounts actually moved. Both are zero when the swap
// was suppressed.
type SwapReceipt struct {
	AmountIn  common.Hash
	AmountOut common.Hash
}

// LiquidityReceipt holds the amounts actually moved by a liquidity change.
type LiquidityReceipt struct {
	AmountA common.Hash
	AmountB common.Hash
}

// Confidential is a constant-product pool whose reserves and amounts are
// ciphertext handles. Checks that depend on encrypted values never fail
// explicitly: they turn the operation into a zero transfer instead.
type Confidential struct {
	core
	ledger  ConfidentialLedger
	ev      Evaluator
	acl     PermissionLedger
	tickets *ticketBook

	initialized bool
	reserveA    common.Hash
	reserveB    common.Hash
}

// NewConfidential builds an uninitialized confidential pool.
func NewConfidential(cfg Config, ledger ConfidentialLedger, ev Evaluator, acl PermissionLedger, events EventSink, logger *zap.Logger) (*Confidential, error) {
	if ledger == nil || ev == nil || acl == nil {
		return nil, fmt.Errorf("%w: ledger, evaluator and permission ledger are required", ErrInvalidConfig)
	}
	p := &Confidential{
		ledger: ledger,
		ev:     ev,
		acl:    acl,
	}
	if err := p.core.init(cfg, true, events, logger); err != nil {
		return nil, err
	}
	p.tickets = newTicketBook(cfg.Address, cfg.QuoteTTL, p.now)
	return p, nil
}

// Reserves returns the reserve handles. Nobody outside the pool is granted
// them.
func (p *Confidential) Reserves() (common.Hash, common.Hash, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserveA, p.reserveB, p.initialized
}

func (p *Confidential) Snapshot() model.PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := model.PoolSnapshot{
		Address:      p.address.Hex(),
		AssetA:       p.assetA.Hex(),
		AssetB:       p.assetB.Hex(),
		Confidential: true,
		Initialized:  p.initialized,
		FeeBps:       p.gov.FeeBps(),
		Paused:       p.gov.Paused(),
		Owner:        p.gov.Owner().Hex(),
		Version:      p.version,
	}
	if p.initialized {
		snap.ReserveA = p.reserveA.Hex()
		snap.ReserveB = p.reserveB.Hex()
	}
	return snap
}

// GetQuote computes the encrypted output fraction for amountIn and issues a
// single-use ticket. Only the pool and the caller can decrypt the fraction.
// It does not take the lock and is available while paused.
func (p *Confidential) GetQuote(ctx context.Context, caller common.Address, amountIn common.Hash, direction model.Direction) (QuoteTicket, error) {
	if !direction.Valid() {
		return QuoteTicket{}, ErrInvalidDirection
	}
	if err := ctx.Err(); err != nil {
		return QuoteTicket{}, err
	}
	if err := p.checkInput(caller, amountIn); err != nil {
		return QuoteTicket{}, err
	}

	p.mu.RLock()
	initialized := p.initialized
	reserveIn, reserveOut := p.sides(direction)
	feeBps := p.gov.FeeBps()
	version := p.version
	p.mu.RUnlock()

	if !initialized {
		return QuoteTicket{}, ErrInsufficientLiquidity
	}

	numerator, denominator, err := formula.Encrypted(p.ev, reserveIn, reserveOut, amountIn, feeBps)
	if err != nil {
		return QuoteTicket{}, fmt.Errorf("quote: %w", err)
	}
	p.acl.Grant(amountIn, p.address)
	p.acl.Grant(numerator, p.address, caller)
	p.acl.Grant(denominator, p.address, caller)

	ticket := p.tickets.issue(QuoteTicket{
		Owner:       caller,
		Direction:   direction,
		AmountIn:    amountIn,
		Numerator:   numerator,
		Denominator: denominator,
		FeeBps:      feeBps,
		Version:     version,
	})
	p.logger.Debug("quote issued",
		zap.String("caller", caller.Hex()),
		zap.Stringer("direction", direction),
		zap.String("ticket", ticket.ID.Hex()),
		zap.Uint64("version", version),
	)
	return ticket, nil
}

// Swap redeems a quote ticket. The trade happens only if ExpectedOut equals
// floor(numerator/denominator), is non-zero and at least MinOut, and the
// caller's balance covers AmountIn; otherwise zero moves both ways and the receipt and event
// look the same.
func (p *Confidential) Swap(ctx context.Context, caller common.Address, req SwapRequest) (SwapReceipt, error) {
	if !req.Direction.Valid() {
		return SwapReceipt{}, ErrInvalidDirection
	}

	var receipt SwapReceipt
	err := p.lock.Do(ctx, func(ctx context.Context) error {
		if err := p.gov.RequireActive(); err != nil {
			return err
		}
		for _, h := range []common.Hash{req.AmountIn, req.ExpectedOut, req.MinOut} {
			if err := p.checkInput(caller, h); err != nil {
				return err
			}
		}

		p.mu.RLock()
		initialized := p.initialized
		reserveIn, reserveOut := p.sides(req.Direction)
		version := p.version
		p.mu.RUnlock()

		if !initialized {
			return ErrInsufficientLiquidity
		}
		ticket, err := p.tickets.consume(req.QuoteID, caller, req.Direction, req.AmountIn, version)
		if err != nil {
			return err
		}

		sufficient, err := p.quoteHolds(ticket, req.ExpectedOut, req.MinOut)
		if err != nil {
			return err
		}
		zero := p.ev.TrivialEncrypt(new(uint256.Int))
		actualIn, err := p.ev.Select(sufficient, req.AmountIn, zero)
		if err != nil {
			return fmt.Errorf("select input: %w", err)
		}
		p.acl.Grant(actualIn, p.address, p.ledger.Address())

		assetIn, assetOut := p.assets(req.Direction)
		transferred, err := p.ledger.Pull(ctx, assetIn, p.address, caller, actualIn)
		if err != nil {
			return fmt.Errorf("pull %s: %w", assetIn.Hex(), err)
		}

		funded, err := p.ev.Ge(transferred, actualIn)
		if err != nil {
			return fmt.Errorf("compare transfer: %w", err)
		}
		settle, err := p.ev.And(sufficient, funded)
		if err != nil {
			return fmt.Errorf("combine checks: %w", err)
		}
		actualOut, err := p.ev.Select(settle, req.ExpectedOut, zero)
		if err != nil {
			return fmt.Errorf("select output: %w", err)
		}
		p.acl.Grant(actualOut, p.address, p.ledger.Address())

		sent, err := p.ledger.Push(ctx, assetOut, p.address, caller, actualOut)
		if err != nil {
			p.refund(ctx, assetIn, caller, transferred)
			return fmt.Errorf("push %s: %w", assetOut.Hex(), err)
		}

		newIn, err := p.ev.Add(reserveIn, transferred)
		if err != nil {
			return fmt.Errorf("credit reserve: %w", err)
		}
		newOut, err := p.ev.Sub(reserveOut, sent)
		if err != nil {
			return fmt.Errorf("debit reserve: %w", err)
		}

		var newA, newB common.Hash
		if req.Direction == model.AToB {
			newA, newB = newIn, newOut
		} else {
			newA, newB = newOut, newIn
		}
		version = p.commit(newA, newB)

		p.acl.Grant(transferred, p.address, caller)
		p.acl.Grant(sent, p.address, caller)
		receipt = SwapReceipt{AmountIn: transferred, AmountOut: sent}

		p.logger.Debug("swap settled",
			zap.String("caller", caller.Hex()),
			zap.Stringer("direction", req.Direction),
			zap.Uint64("version", version),
		)
		p.emit(ctx, model.PoolEvent{
			Kind:    model.EventSwap,
			Actor:   caller.Hex(),
			Version: version,
			Swap: &model.SwapEventData{
				Direction:       req.Direction,
				AmountInHandle:  transferred.Hex(),
				AmountOutHandle: sent.Hex(),
			},
		})
		return nil
	})
	if err != nil {
		return SwapReceipt{}, err
	}
	return receipt, nil
}

// quoteHolds evaluates, without division:
//
//	expected > 0
//	expected >= min
//	expected*den <= num < expected*den + den
//
// The last two hold exactly when expected == floor(num/den). A pool whose
// reserves were drained back to zero quotes num == 0, so the first term
// suppresses every swap against it.
func (p *Confidential) quoteHolds(t QuoteTicket, expected, minOut common.Hash) (common.Hash, error) {
	positive, err := p.ev.Lt(p.ev.TrivialEncrypt(new(uint256.Int)), expected)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check output: %w", err)
	}
	atLeastMin, err := p.ev.Ge(expected, minOut)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check minimum: %w", err)
	}
	aboveMin, err := p.ev.And(positive, atLeastMin)
	if err != nil {
		return common.Hash{}, fmt.Errorf("combine checks: %w", err)
	}
	scaled, err := p.ev.Mul(expected, t.Denominator)
	if err != nil {
		return common.Hash{}, fmt.Errorf("scale expected: %w", err)
	}
	lower, err := p.ev.Le(scaled, t.Numerator)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check lower bound: %w", err)
	}
	ceiling, err := p.ev.Add(scaled, t.Denominator)
	if err != nil {
		return common.Hash{}, fmt.Errorf("scale ceiling: %w", err)
	}
	upper, err := p.ev.Lt(t.Numerator, ceiling)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check upper bound: %w", err)
	}
	bounded, err := p.ev.And(lower, upper)
	if err != nil {
		return common.Hash{}, fmt.Errorf("combine bounds: %w", err)
	}
	holds, err := p.ev.And(aboveMin, bounded)
	if err != nil {
		return common.Hash{}, fmt.Errorf("combine checks: %w", err)
	}
	return holds, nil
}

// AddLiquidity deposits both amounts. If either pull comes back short the
// other side is refunded and the reserves gain zero; the first call marks
// the pool initialized.
func (p *Confidential) AddLiquidity(ctx context.Context, caller common.Address, amountA, amountB common.Hash) (LiquidityReceipt, error) {
	var receipt LiquidityReceipt
	err := p.lock.Do(ctx, func(ctx context.Context) error {
		if err := p.gov.RequireActive(); err != nil {
			return err
		}
		if err := p.checkInput(caller, amountA); err != nil {
			return err
		}
		if err := p.checkInput(caller, amountB); err != nil {
			return err
		}

		p.acl.Grant(amountA, p.address, p.ledger.Address())
		p.acl.Grant(amountB, p.address, p.ledger.Address())

		gotA, err := p.ledger.Pull(ctx, p.assetA, p.address, caller, amountA)
		if err != nil {
			return fmt.Errorf("pull %s: %w", p.assetA.Hex(), err)
		}
		gotB, err := p.ledger.Pull(ctx, p.assetB, p.address, caller, amountB)
		if err != nil {
			p.refund(ctx, p.assetA, caller, gotA)
			return fmt.Errorf("pull %s: %w", p.assetB.Hex(), err)
		}

		fullA, err := p.ev.Ge(gotA, amountA)
		if err != nil {
			return fmt.Errorf("compare transfer: %w", err)
		}
		fullB, err := p.ev.Ge(gotB, amountB)
		if err != nil {
			return fmt.Errorf("compare transfer: %w", err)
		}
		both, err := p.ev.And(fullA, fullB)
		if err != nil {
			return fmt.Errorf("combine checks: %w", err)
		}

		zero := p.ev.TrivialEncrypt(new(uint256.Int))
		addA, refundA, err := p.split(both, gotA, zero)
		if err != nil {
			return err
		}
		addB, refundB, err := p.split(both, gotB, zero)
		if err != nil {
			return err
		}
		p.refund(ctx, p.assetA, caller, refundA)
		p.refund(ctx, p.assetB, caller, refundB)

		p.mu.RLock()
		reserveA, reserveB := p.reserveA, p.reserveB
		initialized := p.initialized
		p.mu.RUnlock()
		if !initialized {
			reserveA, reserveB = zero, zero
		}

		newA, err := p.ev.Add(reserveA, addA)
		if err != nil {
			return fmt.Errorf("credit reserve: %w", err)
		}
		newB, err := p.ev.Add(reserveB, addB)
		if err != nil {
			return fmt.Errorf("credit reserve: %w", err)
		}
		version := p.commit(newA, newB)

		p.acl.Grant(addA, p.address, caller)
		p.acl.Grant(addB, p.address, caller)
		receipt = LiquidityReceipt{AmountA: addA, AmountB: addB}

		p.logger.Debug("add liquidity", zap.String("caller", caller.Hex()), zap.Uint64("version", version))
		p.emit(ctx, model.PoolEvent{
			Kind:    model.EventAddLiquidity,
			Actor:   caller.Hex(),
			Version: version,
			Liquidity: &model.LiquidityEventData{
				AmountAHandle: addA.Hex(),
				AmountBHandle: addB.Hex(),
			},
		})
		return nil
	})
	if err != nil {
		return LiquidityReceipt{}, err
	}
	return receipt, nil
}

// RemoveLiquidity withdraws both amounts if both are covered by the reserves
// and the withdrawal empties either both sides or neither. Otherwise zero
// moves.
func (p *Confidential) RemoveLiquidity(ctx context.Context, caller common.Address, amountA, amountB common.Hash) (LiquidityReceipt, error) {
	var receipt LiquidityReceipt
	err := p.lock.Do(ctx, func(ctx context.Context) error {
		if err := p.gov.RequireActive(); err != nil {
			return err
		}
		if err := p.checkInput(caller, amountA); err != nil {
			return err
		}
		if err := p.checkInput(caller, amountB); err != nil {
			return err
		}

		p.mu.RLock()
		reserveA, reserveB := p.reserveA, p.reserveB
		initialized := p.initialized
		p.mu.RUnlock()
		if !initialized {
			return ErrInsufficientLiquidity
		}

		sufficient, err := p.withdrawalHolds(reserveA, reserveB, amountA, amountB)
		if err != nil {
			return err
		}
		zero := p.ev.TrivialEncrypt(new(uint256.Int))
		outA, err := p.ev.Select(sufficient, amountA, zero)
		if err != nil {
			return fmt.Errorf("select amount: %w", err)
		}
		outB, err := p.ev.Select(sufficient, amountB, zero)
		if err != nil {
			return fmt.Errorf("select amount: %w", err)
		}
		p.acl.Grant(outA, p.address, p.ledger.Address())
		p.acl.Grant(outB, p.address, p.ledger.Address())

		sentA, err := p.ledger.Push(ctx, p.assetA, p.address, caller, outA)
		if err != nil {
			return fmt.Errorf("push %s: %w", p.assetA.Hex(), err)
		}
		sentB, err := p.ledger.Push(ctx, p.assetB, p.address, caller, outB)
		if err != nil {
			if _, rerr := p.ledger.Pull(ctx, p.assetA, p.address, caller, sentA); rerr != nil {
				p.logger.Error("reclaim after failed push", zap.String("asset", p.assetA.Hex()), zap.Error(rerr))
			}
			return fmt.Errorf("push %s: %w", p.assetB.Hex(), err)
		}

		newA, err := p.ev.Sub(reserveA, sentA)
		if err != nil {
			return fmt.Errorf("debit reserve: %w", err)
		}
		newB, err := p.ev.Sub(reserveB, sentB)
		if err != nil {
			return fmt.Errorf("debit reserve: %w", err)
		}
		version := p.commit(newA, newB)

		p.acl.Grant(sentA, p.address, caller)
		p.acl.Grant(sentB, p.address, caller)
		receipt = LiquidityReceipt{AmountA: sentA, AmountB: sentB}

		p.logger.Debug("remove liquidity", zap.String("caller", caller.Hex()), zap.Uint64("version", version))
		p.emit(ctx, model.PoolEvent{
			Kind:    model.EventRemoveLiquidity,
			Actor:   caller.Hex(),
			Version: version,
			Liquidity: &model.LiquidityEventData{
				AmountAHandle: sentA.Hex(),
				AmountBHandle: sentB.Hex(),
			},
		})
		return nil
	})
	if err != nil {
		return LiquidityReceipt{}, err
	}
	return receipt, nil
}

// withdrawalHolds is reserveA >= a && reserveB >= b &&
// (reserveA == a) == (reserveB == b).
func (p *Confidential) withdrawalHolds(reserveA, reserveB, amountA, amountB common.Hash) (common.Hash, error) {
	coverA, err := p.ev.Ge(reserveA, amountA)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check reserve: %w", err)
	}
	coverB, err := p.ev.Ge(reserveB, amountB)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check reserve: %w", err)
	}
	drainA, err := p.ev.Eq(reserveA, amountA)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check drain: %w", err)
	}
	drainB, err := p.ev.Eq(reserveB, amountB)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check drain: %w", err)
	}
	balanced, err := p.ev.Eq(drainA, drainB)
	if err != nil {
		return common.Hash{}, fmt.Errorf("check drain: %w", err)
	}
	covered, err := p.ev.And(coverA, coverB)
	if err != nil {
		return common.Hash{}, fmt.Errorf("combine checks: %w", err)
	}
	holds, err := p.ev.And(covered, balanced)
	if err != nil {
		return common.Hash{}, fmt.Errorf("combine checks: %w", err)
	}
	return holds, nil
}

// split returns (select(cond, v, zero), select(cond, zero, v)).
func (p *Confidential) split(cond, v, zero common.Hash) (common.Hash, common.Hash, error) {
	kept, err := p.ev.Select(cond, v, zero)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("select amount: %w", err)
	}
	returned, err := p.ev.Select(cond, zero, v)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("select refund: %w", err)
	}
	p.acl.Grant(kept, p.address)
	p.acl.Grant(returned, p.address, p.ledger.Address())
	return kept, returned, nil
}

// checkInput accepts a caller-supplied handle only if it is a live uint256
// ciphertext the caller is allowed to use.
func (p *Confidential) checkInput(caller common.Address, h common.Hash) error {
	if h == (common.Hash{}) {
		return fmt.Errorf("%w: empty ciphertext", ErrInvalidAmount)
	}
	typ, ok := p.ev.TypeOf(h)
	if !ok {
		return fmt.Errorf("%w: unknown ciphertext %s", ErrInvalidAmount, h.Hex())
	}
	if typ != fhe.TypeEuint256 {
		return fmt.Errorf("%w: ciphertext %s is %s", ErrInvalidAmount, h.Hex(), typ)
	}
	if !p.acl.IsGranted(h, caller) {
		return fmt.Errorf("%w: ciphertext not granted to caller", ErrInvalidAmount)
	}
	return nil
}

// sides returns the (in, out) reserve handles. Callers hold p.mu.
func (p *Confidential) sides(direction model.Direction) (common.Hash, common.Hash) {
	if direction == model.BToA {
		return p.reserveB, p.reserveA
	}
	return p.reserveA, p.reserveB
}

// commit stores new reserves, granting them to the pool only. initialized
// stays set once the first deposit commits; a pool drained back to 0/0
// is empty only under encryption and refuses trades through quoteHolds.
func (p *Confidential) commit(reserveA, reserveB common.Hash) uint64 {
	p.acl.Grant(reserveA, p.address)
	p.acl.Grant(reserveB, p.address)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserveA, p.reserveB = reserveA, reserveB
	p.initialized = true
	p.version++
	return p.version
}

func (p *Confidential) refund(ctx context.Context, asset, to common.Address, amount common.Hash) {
	p.acl.Grant(amount, p.address, p.ledger.Address())
	if _, err := p.ledger.Push(ctx, asset, p.address, to, amount); err != nil {
		p.logger.Error("refund failed", zap.String("asset", asset.Hex()), zap.String("to", to.Hex()), zap.Error(err))
	}
}
