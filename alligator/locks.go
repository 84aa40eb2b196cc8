package alligator

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedLocks serializes validate+record sequences per (proxy, proposal).
// Entries are reference counted and dropped once nobody holds or waits on them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*lockEntry)}
}

func lockKey(proxy common.Address, proposalID *big.Int) string {
	return string(append(proxy.Bytes(), math.U256Bytes(new(big.Int).Set(proposalID))...))
}

func (l *keyedLocks) acquire(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = new(lockEntry)
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *keyedLocks) release(key string) {
	l.mu.Lock()
	e := l.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}

// lock acquires every distinct key in sorted order and returns the release
// function. Sorting keeps overlapping batches from deadlocking.
func (l *keyedLocks) lock(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	for _, k := range uniq {
		l.acquire(k)
	}
	return func() {
		for i := len(uniq) - 1; i >= 0; i-- {
			l.release(uniq[i])
		}
	}
}
