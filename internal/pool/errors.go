package pool

import (
	"errors"

	"poolEngine/internal/governance"
	"poolEngine/internal/guard"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInvalidDirection      = errors.New("invalid direction")
	ErrInvalidConfig         = errors.New("invalid pool config")

	ErrQuoteNotFound = errors.New("quote not found")
	ErrQuoteExpired  = errors.New("quote expired")
	ErrQuoteStale    = errors.New("quote stale")
	ErrQuoteMismatch = errors.New("quote does not match request")
)

// Governance and lock failures surface unchanged so callers can match them
// against a single package.
var (
	ErrPoolPaused    = governance.ErrPoolPaused
	ErrUnauthorized  = governance.ErrUnauthorized
	ErrFeeOutOfRange = governance.ErrFeeOutOfRange
	ErrInvalidOwner  = governance.ErrInvalidOwner
	ErrReentrant     = guard.ErrReentrant
)
