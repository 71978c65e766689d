// Package token reads ERC20 metadata and balances for pool assets.
package token

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolEngine/internal/model"
)

// Caller performs eth_call. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// MetaCache caches token metadata by address.
type MetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewMetaCache() *MetaCache {
	return &MetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *MetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *MetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Resolver fetches metadata through a Caller and remembers the answers.
type Resolver struct {
	caller Caller
	cache  *MetaCache
	logger *zap.Logger
}

func NewResolver(caller Caller, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{caller: caller, cache: NewMetaCache(), logger: logger}
}

// Meta returns cached metadata or loads it.
func (r *Resolver) Meta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if meta, ok := r.cache.Get(token); ok {
		return meta, nil
	}
	meta, err := FetchMeta(ctx, r.caller, token, r.logger)
	if err != nil {
		return meta, err
	}
	r.cache.Set(token, meta)
	return meta, nil
}

// Decimals returns the token decimals.
func (r *Resolver) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	meta, err := r.Meta(ctx, token)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// FetchMeta loads token metadata via ERC20 calls. Decimals are required;
// symbol and name are best effort.
func FetchMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := call(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call(ctx, caller, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call(ctx, caller, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := call(ctx, caller, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call(ctx, caller, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else if logger != nil {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// BalanceOf returns owner's ERC20 balance at blockNumber (nil for latest).
func BalanceOf(ctx context.Context, caller Caller, token, owner common.Address, blockNumber *big.Int) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := call(ctx, caller, token, parsed, "balanceOf", blockNumber, owner)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}

func call(ctx context.Context, caller Caller, token common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
