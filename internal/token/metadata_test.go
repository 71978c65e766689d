package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeToken struct {
	decimals      uint8
	symbol        string
	name          string
	bytes32Symbol bool
	balances      map[common.Address]*big.Int
	calls         int
	fail          bool
}

func (f *fakeToken) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("rpc down")
	}
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	case "symbol":
		if f.bytes32Symbol {
			legacy, err := erc20ABIBytes32Instance()
			if err != nil {
				return nil, err
			}
			var out [32]byte
			copy(out[:], f.symbol)
			return legacy.Methods["symbol"].Outputs.Pack(out)
		}
		return method.Outputs.Pack(f.symbol)
	case "name":
		return method.Outputs.Pack(f.name)
	case "balanceOf":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		balance := f.balances[args[0].(common.Address)]
		if balance == nil {
			balance = new(big.Int)
		}
		return method.Outputs.Pack(balance)
	default:
		return nil, errors.New("unexpected method " + method.Name)
	}
}

var tokenAddr = common.HexToAddress("0x000000000000000000000000000000000000aaaa")

func TestFetchMeta(t *testing.T) {
	fake := &fakeToken{decimals: 6, symbol: "USDC", name: "USD Coin"}
	meta, err := FetchMeta(context.Background(), fake, tokenAddr, nil)
	if err != nil {
		t.Fatalf("fetch meta: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" || meta.Name != "USD Coin" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if meta.Address != tokenAddr.Hex() {
		t.Fatalf("unexpected address %s", meta.Address)
	}
}

func TestFetchMetaBytes32Symbol(t *testing.T) {
	fake := &fakeToken{decimals: 18, symbol: "MKR", name: "Maker", bytes32Symbol: true}
	meta, err := FetchMeta(context.Background(), fake, tokenAddr, nil)
	if err != nil {
		t.Fatalf("fetch meta: %v", err)
	}
	if meta.Symbol != "MKR" {
		t.Fatalf("expected MKR, got %q", meta.Symbol)
	}
}

func TestFetchMetaRequiresDecimals(t *testing.T) {
	if _, err := FetchMeta(context.Background(), &fakeToken{fail: true}, tokenAddr, nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := FetchMeta(context.Background(), nil, tokenAddr, nil); err == nil {
		t.Fatalf("expected error for nil caller")
	}
}

func TestResolverCaches(t *testing.T) {
	fake := &fakeToken{decimals: 8, symbol: "WBTC", name: "Wrapped BTC"}
	r := NewResolver(fake, nil)

	for i := 0; i < 3; i++ {
		decimals, err := r.Decimals(context.Background(), tokenAddr)
		if err != nil {
			t.Fatalf("decimals: %v", err)
		}
		if decimals != 8 {
			t.Fatalf("expected 8, got %d", decimals)
		}
	}
	if fake.calls != 3 {
		t.Fatalf("expected one fetch (3 calls), got %d calls", fake.calls)
	}
}

func TestBalanceOf(t *testing.T) {
	holder := common.HexToAddress("0x0000000000000000000000000000000000000f00")
	fake := &fakeToken{balances: map[common.Address]*big.Int{holder: big.NewInt(12345)}}

	balance, err := BalanceOf(context.Background(), fake, tokenAddr, holder, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Int64() != 12345 {
		t.Fatalf("unexpected balance %s", balance)
	}

	balance, err = BalanceOf(context.Background(), fake, tokenAddr, tokenAddr, nil)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %v %v", balance, err)
	}
}
