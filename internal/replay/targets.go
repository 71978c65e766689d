package replay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolEngine/internal/fhe"
	"poolEngine/internal/ledger"
	"poolEngine/internal/model"
	"poolEngine/internal/pool"
)

// target applies replay operations to one pool and its ledger.
type target interface {
	apply(ctx context.Context, caller common.Address, op model.Operation) error
	snapshot() model.PoolSnapshot
}

// administered is the governance surface shared by both pool kinds.
type administered interface {
	SetFee(ctx context.Context, caller common.Address, feeBps uint16) error
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
}

func applyGovernance(ctx context.Context, p administered, caller common.Address, op model.Operation) error {
	switch op.Op {
	case model.OpSetFee:
		return p.SetFee(ctx, caller, op.FeeBps)
	case model.OpPause:
		return p.Pause(ctx, caller)
	case model.OpUnpause:
		return p.Unpause(ctx, caller)
	case model.OpTransferOwnership:
		newOwner, err := ParseAddress(op.NewOwner)
		if err != nil {
			return fmt.Errorf("new_owner: %w", err)
		}
		return p.TransferOwnership(ctx, caller, newOwner)
	default:
		return fmt.Errorf("unsupported op %q", op.Op)
	}
}

func parseMint(op model.Operation) (common.Address, *uint256.Int, error) {
	asset, err := ParseAddress(op.Asset)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("asset: %w", err)
	}
	amount, err := parseAmount("amount", op.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return asset, amount, nil
}

func parsePair(op model.Operation) (*uint256.Int, *uint256.Int, error) {
	amountA, err := parseAmount("amount_a", op.AmountA)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := parseAmount("amount_b", op.AmountB)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// parseSwap returns the input amount and the minimum output; an omitted
// minimum means no slippage bound.
func parseSwap(op model.Operation) (*uint256.Int, *uint256.Int, error) {
	amountIn, err := parseAmount("amount_in", op.AmountIn)
	if err != nil {
		return nil, nil, err
	}
	minOut, err := model.ParseAmount(op.MinAmountOut)
	if err != nil {
		return nil, nil, fmt.Errorf("min_amount_out: %w", err)
	}
	return amountIn, minOut, nil
}

type transparentTarget struct {
	ledger *ledger.Ledger
	pool   *pool.Transparent
	logger *zap.Logger
}

func (t *transparentTarget) apply(ctx context.Context, caller common.Address, op model.Operation) error {
	switch op.Op {
	case model.OpMint:
		asset, amount, err := parseMint(op)
		if err != nil {
			return err
		}
		return t.ledger.Mint(asset, caller, amount)
	case model.OpAddLiquidity:
		amountA, amountB, err := parsePair(op)
		if err != nil {
			return err
		}
		return t.pool.AddLiquidity(ctx, caller, amountA, amountB)
	case model.OpRemoveLiquidity:
		amountA, amountB, err := parsePair(op)
		if err != nil {
			return err
		}
		return t.pool.RemoveLiquidity(ctx, caller, amountA, amountB)
	case model.OpSwap:
		amountIn, minOut, err := parseSwap(op)
		if err != nil {
			return err
		}
		out, err := t.pool.Swap(ctx, caller, op.Direction, amountIn, minOut)
		if err != nil {
			return err
		}
		t.logger.Debug("swap applied", zap.String("caller", caller.Hex()), zap.String("amount_out", model.FormatAmount(out)))
		return nil
	case model.OpQuote:
		amountIn, _, err := parseSwap(op)
		if err != nil {
			return err
		}
		out, err := t.pool.Quote(op.Direction, amountIn)
		if err != nil {
			return err
		}
		t.logger.Info("quote",
			zap.Stringer("direction", op.Direction),
			zap.String("amount_in", model.FormatAmount(amountIn)),
			zap.String("amount_out", model.FormatAmount(out)),
		)
		return nil
	default:
		return applyGovernance(ctx, t.pool, caller, op)
	}
}

func (t *transparentTarget) snapshot() model.PoolSnapshot {
	return t.pool.Snapshot()
}

// confidentialTarget plays the off-platform client for every caller: it
// encrypts inputs, decrypts its own quotes and computes the expected output.
type confidentialTarget struct {
	cop    *fhe.Coprocessor
	ledger *ledger.ConfidentialLedger
	pool   *pool.Confidential
	logger *zap.Logger
}

func (t *confidentialTarget) apply(ctx context.Context, caller common.Address, op model.Operation) error {
	switch op.Op {
	case model.OpMint:
		asset, amount, err := parseMint(op)
		if err != nil {
			return err
		}
		return t.ledger.Mint(asset, caller, amount)
	case model.OpAddLiquidity:
		amountA, amountB, err := parsePair(op)
		if err != nil {
			return err
		}
		_, err = t.pool.AddLiquidity(ctx, caller, t.cop.Encrypt(amountA, caller), t.cop.Encrypt(amountB, caller))
		return err
	case model.OpRemoveLiquidity:
		amountA, amountB, err := parsePair(op)
		if err != nil {
			return err
		}
		_, err = t.pool.RemoveLiquidity(ctx, caller, t.cop.Encrypt(amountA, caller), t.cop.Encrypt(amountB, caller))
		return err
	case model.OpSwap:
		amountIn, minOut, err := parseSwap(op)
		if err != nil {
			return err
		}
		return t.swap(ctx, caller, op.Direction, amountIn, minOut)
	case model.OpQuote:
		amountIn, _, err := parseSwap(op)
		if err != nil {
			return err
		}
		ticket, expected, err := t.quote(ctx, caller, op.Direction, amountIn)
		if err != nil {
			return err
		}
		t.logger.Info("quote",
			zap.Stringer("direction", op.Direction),
			zap.String("ticket", ticket.ID.Hex()),
			zap.String("amount_out", model.FormatAmount(expected)),
		)
		return nil
	default:
		return applyGovernance(ctx, t.pool, caller, op)
	}
}

// quote requests a ticket and floors the caller's decrypted fraction.
func (t *confidentialTarget) quote(ctx context.Context, caller common.Address, direction model.Direction, amountIn *uint256.Int) (pool.QuoteTicket, *uint256.Int, error) {
	ticket, err := t.pool.GetQuote(ctx, caller, t.cop.Encrypt(amountIn, caller), direction)
	if err != nil {
		return pool.QuoteTicket{}, nil, err
	}
	numerator, err := t.cop.Decrypt(ticket.Numerator, caller)
	if err != nil {
		return pool.QuoteTicket{}, nil, fmt.Errorf("decrypt numerator: %w", err)
	}
	denominator, err := t.cop.Decrypt(ticket.Denominator, caller)
	if err != nil {
		return pool.QuoteTicket{}, nil, fmt.Errorf("decrypt denominator: %w", err)
	}
	expected := new(uint256.Int)
	if !denominator.IsZero() {
		expected.Div(numerator, denominator)
	}
	return ticket, expected, nil
}

func (t *confidentialTarget) swap(ctx context.Context, caller common.Address, direction model.Direction, amountIn, minOut *uint256.Int) error {
	ticket, expected, err := t.quote(ctx, caller, direction, amountIn)
	if err != nil {
		return err
	}
	receipt, err := t.pool.Swap(ctx, caller, pool.SwapRequest{
		QuoteID:     ticket.ID,
		Direction:   direction,
		AmountIn:    ticket.AmountIn,
		ExpectedOut: t.cop.Encrypt(expected, caller),
		MinOut:      t.cop.Encrypt(minOut, caller),
	})
	if err != nil {
		return err
	}
	t.logger.Debug("swap applied", zap.String("caller", caller.Hex()), zap.String("amount_out_handle", receipt.AmountOut.Hex()))
	return nil
}

func (t *confidentialTarget) snapshot() model.PoolSnapshot {
	return t.pool.Snapshot()
}
