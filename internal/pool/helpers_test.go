package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolEngine/internal/acl"
	"poolEngine/internal/fhe"
	"poolEngine/internal/ledger"
	"poolEngine/internal/model"
	"poolEngine/internal/storage"
)

var (
	poolAddr   = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	assetA     = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	assetB     = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	ledgerAddr = common.HexToAddress("0x000000000000000000000000000000000000ed9e")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(clock *testClock) Config {
	return Config{
		Address: poolAddr,
		AssetA:  assetA,
		AssetB:  assetB,
		Owner:   owner,
		FeeBps:  30,
		Now:     clock.Now,
	}
}

// hookLedger wraps the plain ledger so tests can re-enter the pool or force
// transfer failures.
type hookLedger struct {
	*ledger.Ledger
	onPull   func(ctx context.Context) error
	pullErr  error
	failPush func(asset common.Address) bool
}

var errInjected = errors.New("injected failure")

func (l *hookLedger) Pull(ctx context.Context, asset, spender, from common.Address, amount *uint256.Int) error {
	if l.onPull != nil {
		hook := l.onPull
		l.onPull = nil
		l.pullErr = hook(ctx)
	}
	return l.Ledger.Pull(ctx, asset, spender, from, amount)
}

func (l *hookLedger) Push(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	if l.failPush != nil && l.failPush(asset) {
		return errInjected
	}
	return l.Ledger.Push(ctx, asset, from, to, amount)
}

type transparentEnv struct {
	pool    *Transparent
	ledger  *hookLedger
	journal *storage.Journal
	clock   *testClock
}

func newTransparentEnv(t *testing.T) *transparentEnv {
	t.Helper()
	clock := newTestClock()
	led := &hookLedger{Ledger: ledger.New()}
	journal := storage.NewJournal()
	p, err := NewTransparent(testConfig(clock), led, journal, nil)
	require.NoError(t, err)
	return &transparentEnv{pool: p, ledger: led, journal: journal, clock: clock}
}

// seed funds the provider and adds the given liquidity.
func (e *transparentEnv) seed(t *testing.T, provider common.Address, amountA, amountB uint64) {
	t.Helper()
	require.NoError(t, e.ledger.Mint(assetA, provider, u(amountA)))
	require.NoError(t, e.ledger.Mint(assetB, provider, u(amountB)))
	require.NoError(t, e.pool.AddLiquidity(context.Background(), provider, u(amountA), u(amountB)))
}

func (e *transparentEnv) requireReserves(t *testing.T, wantA, wantB uint64) {
	t.Helper()
	a, b := e.pool.Reserves()
	require.Equal(t, wantA, a.Uint64(), "reserve A")
	require.Equal(t, wantB, b.Uint64(), "reserve B")
	require.Equal(t, wantA, e.ledger.BalanceOf(assetA, poolAddr).Uint64(), "pool balance A")
	require.Equal(t, wantB, e.ledger.BalanceOf(assetB, poolAddr).Uint64(), "pool balance B")
}

type confidentialEnv struct {
	pool    *Confidential
	ledger  *ledger.ConfidentialLedger
	cop     *fhe.Coprocessor
	grants  *acl.Ledger
	journal *storage.Journal
	clock   *testClock
}

func newConfidentialEnv(t *testing.T) *confidentialEnv {
	t.Helper()
	clock := newTestClock()
	grants := acl.NewLedger()
	cop := fhe.NewCoprocessor(grants)
	led := ledger.NewConfidential(ledgerAddr, cop, grants)
	journal := storage.NewJournal()
	p, err := NewConfidential(testConfig(clock), led, cop, grants, journal, nil)
	require.NoError(t, err)
	return &confidentialEnv{pool: p, ledger: led, cop: cop, grants: grants, journal: journal, clock: clock}
}

func (e *confidentialEnv) encrypt(v uint64, who common.Address) common.Hash {
	return e.cop.Encrypt(u(v), who)
}

func (e *confidentialEnv) decrypt(t *testing.T, h common.Hash, who common.Address) uint64 {
	t.Helper()
	v, err := e.cop.Decrypt(h, who)
	require.NoError(t, err)
	return v.Uint64()
}

func (e *confidentialEnv) balance(t *testing.T, asset, who common.Address) uint64 {
	t.Helper()
	return e.decrypt(t, e.ledger.BalanceOf(asset, who), who)
}

// reserves decrypts the reserves with the pool's own rights.
func (e *confidentialEnv) reserves(t *testing.T) (uint64, uint64) {
	t.Helper()
	a, b, ok := e.pool.Reserves()
	require.True(t, ok)
	return e.decrypt(t, a, poolAddr), e.decrypt(t, b, poolAddr)
}

func (e *confidentialEnv) seed(t *testing.T, provider common.Address, amountA, amountB uint64) {
	t.Helper()
	require.NoError(t, e.ledger.Mint(assetA, provider, u(amountA)))
	require.NoError(t, e.ledger.Mint(assetB, provider, u(amountB)))
	_, err := e.pool.AddLiquidity(context.Background(), provider, e.encrypt(amountA, provider), e.encrypt(amountB, provider))
	require.NoError(t, err)
}

// quote runs GetQuote and returns the ticket with the caller's decrypted
// floor(numerator/denominator).
func (e *confidentialEnv) quote(t *testing.T, caller common.Address, direction model.Direction, amountIn uint64) (QuoteTicket, uint64) {
	t.Helper()
	ticket, err := e.pool.GetQuote(context.Background(), caller, e.encrypt(amountIn, caller), direction)
	require.NoError(t, err)
	num := e.decrypt(t, ticket.Numerator, caller)
	den := e.decrypt(t, ticket.Denominator, caller)
	require.NotZero(t, den)
	return ticket, num / den
}

func (e *confidentialEnv) request(ticket QuoteTicket, caller common.Address, expected, minOut uint64) SwapRequest {
	return SwapRequest{
		QuoteID:     ticket.ID,
		Direction:   ticket.Direction,
		AmountIn:    ticket.AmountIn,
		ExpectedOut: e.encrypt(expected, caller),
		MinOut:      e.encrypt(minOut, caller),
	}
}
