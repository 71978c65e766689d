package pool

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"

	"poolEngine/internal/model"
)

// QuoteTicket binds an encrypted quote to its owner, input and the pool
// version it was computed against. Expiry and version are public metadata.
type QuoteTicket struct {
	ID          common.Hash
	Owner       common.Address
	Direction   model.Direction
	AmountIn    common.Hash
	Numerator   common.Hash
	Denominator common.Hash
	FeeBps      uint16
	Version     uint64
	ExpiresAt   time.Time
}

type ticketBook struct {
	pool common.Address
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	seq     uint64
	tickets map[common.Hash]QuoteTicket
}

func newTicketBook(pool common.Address, ttl time.Duration, now func() time.Time) *ticketBook {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &ticketBook{
		pool:    pool,
		ttl:     ttl,
		now:     now,
		tickets: make(map[common.Hash]QuoteTicket),
	}
}

func (b *ticketBook) issue(t QuoteTicket) QuoteTicket {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, existing := range b.tickets {
		if now.After(existing.ExpiresAt) {
			delete(b.tickets, id)
		}
	}

	b.seq++
	t.ExpiresAt = now.Add(b.ttl)
	t.ID = b.ticketID(t)
	b.tickets[t.ID] = t
	return t
}

// consume removes and returns the ticket if it is redeemable by owner for
// the given request against the current pool version. A ticket presented
// by someone other than its owner is left in place.
func (b *ticketBook) consume(id common.Hash, owner common.Address, direction model.Direction, amountIn common.Hash, version uint64) (QuoteTicket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tickets[id]
	if !ok {
		return QuoteTicket{}, fmt.Errorf("%w: %s", ErrQuoteNotFound, id.Hex())
	}
	if t.Owner != owner {
		return QuoteTicket{}, fmt.Errorf("%w: owner", ErrQuoteMismatch)
	}
	delete(b.tickets, id)

	if b.now().After(t.ExpiresAt) {
		return QuoteTicket{}, fmt.Errorf("%w: expired at %s", ErrQuoteExpired, t.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if t.Version != version {
		return QuoteTicket{}, fmt.Errorf("%w: issued at version %d, pool at %d", ErrQuoteStale, t.Version, version)
	}
	if t.Direction != direction {
		return QuoteTicket{}, fmt.Errorf("%w: direction", ErrQuoteMismatch)
	}
	if t.AmountIn != amountIn {
		return QuoteTicket{}, fmt.Errorf("%w: amount in", ErrQuoteMismatch)
	}
	return t, nil
}

func (b *ticketBook) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tickets)
}

func (b *ticketBook) ticketID(t QuoteTicket) common.Hash {
	h := blake3.New()
	h.Write(b.pool[:])
	h.Write(t.Owner[:])
	h.Write(t.AmountIn[:])
	h.Write([]byte{byte(t.Direction)})
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], t.Version)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], b.seq)
	h.Write(buf[:])

	var id common.Hash
	h.Digest().Read(id[:])
	return id
}
