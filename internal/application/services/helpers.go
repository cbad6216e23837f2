package services

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ComputeRequestHash canonicalizes a command and hashes it, so the
// idempotency store can detect a key reused with different parameters.
func ComputeRequestHash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%+v", v))
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// lockTable hands out per-authorization mutexes. This lock is distinct
// from the idempotency lock: it guards state transitions so two
// concurrent captures on one authorization never both read the same
// captured amount.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*refLock)}
}

// Acquire blocks until the per-id lock is held and returns the release.
func (t *lockTable) Acquire(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &refLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

// clock is swappable in tests.
type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
