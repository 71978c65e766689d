// Package guard serializes mutating operations on a single pool.
package guard

import (
	"context"
	"errors"
	"sync"
)

var ErrReentrant = errors.New("reentrant call")

type holderKey struct{}

// Lock is a per-pool mutual exclusion guard. A call that re-enters through a
// context already holding the same Lock fails with ErrReentrant instead of
// deadlocking.
type Lock struct {
	mu sync.Mutex
}

// Held reports whether ctx was derived inside Do on this lock.
func (l *Lock) Held(ctx context.Context) bool {
	for v, ok := ctx.Value(holderKey{}).(*holder); ok && v != nil; v = v.parent {
		if v.lock == l {
			return true
		}
	}
	return false
}

type holder struct {
	lock   *Lock
	parent *holder
}

// Do runs fn while holding the lock. The context passed to fn is marked as
// holding it; the lock is released on every exit path.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.Held(ctx) {
		return ErrReentrant
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	parent, _ := ctx.Value(holderKey{}).(*holder)
	return fn(context.WithValue(ctx, holderKey{}, &holder{lock: l, parent: parent}))
}
