// Package acl tracks which principal may decrypt which ciphertext handle.
package acl

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is an in-memory grant table. It is safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	grants map[common.Hash]map[common.Address]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{grants: make(map[common.Hash]map[common.Address]struct{})}
}

// Grant gives each principal decrypt rights on the handle. Granting twice is
// a no-op; grants are never revoked.
func (l *Ledger) Grant(handle common.Hash, principals ...common.Address) {
	if handle == (common.Hash{}) || len(principals) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.grants[handle]
	if !ok {
		entry = make(map[common.Address]struct{}, len(principals))
		l.grants[handle] = entry
	}
	for _, p := range principals {
		if p == (common.Address{}) {
			continue
		}
		entry[p] = struct{}{}
	}
}

// IsGranted reports whether principal may decrypt or use the handle.
func (l *Ledger) IsGranted(handle common.Hash, principal common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.grants[handle][principal]
	return ok
}

// Grantees lists the principals holding a grant on handle, sorted by address.
func (l *Ledger) Grantees(handle common.Hash) []common.Address {
	l.mu.RLock()
	entry := l.grants[handle]
	out := make([]common.Address, 0, len(entry))
	for p := range entry {
		out = append(out, p)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Len returns the number of handles with at least one grant.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.grants)
}
