package app

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// accountLocks serializes mutating ledger operations per account. Locks for
// different accounts are independent, so unrelated users never contend.
//
// Multi-account operations (transfers) must acquire every lock through
// lockMany, which sorts the ids first; the deterministic order prevents
// deadlock between two transfers moving money in opposite directions.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (a *accountLocks) lockFor(userID uuid.UUID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[userID] = l
	}
	return l
}

// lock acquires the single account lock and returns the unlock function.
func (a *accountLocks) lock(userID uuid.UUID) func() {
	l := a.lockFor(userID)
	l.Lock()
	return l.Unlock
}

// lockMany acquires the locks for all given accounts in sorted-id order and
// returns a single unlock function releasing them in reverse.
func (a *accountLocks) lockMany(userIDs ...uuid.UUID) func() {
	ids := make([]uuid.UUID, 0, len(userIDs))
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l := a.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
