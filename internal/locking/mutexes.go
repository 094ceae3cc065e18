package locking

import (
	"context"
	"sort"
	"sync"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
)

// Mutexes is an in-process Locker backed by one mutex per key.
type Mutexes struct {
	muMap map[string]*sync.Mutex // stores the *sync.Mutex for each key
	mapMu sync.Mutex             // protects the muMap itself
}

func NewMutexes() *Mutexes {
	return &Mutexes{
		muMap: make(map[string]*sync.Mutex),
	}
}

func (m *Mutexes) get(key string) *sync.Mutex {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	if _, exists := m.muMap[key]; !exists {
		m.muMap[key] = &sync.Mutex{}
	}
	return m.muMap[key]
}

// Lock acquires every key in ascending order so that two callers locking
// the same pair in opposite directions cannot deadlock. A caller whose
// context ends while waiting gets ctx.Err() and holds nothing.
func (m *Mutexes) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := Order(keys)
	held := make([]*sync.Mutex, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}

	for _, key := range ordered {
		mu := m.get(key)
		if err := lockContext(ctx, mu); err != nil {
			release()
			return nil, err
		}
		held = append(held, mu)
	}
	return release, nil
}

func lockContext(ctx context.Context, mu *sync.Mutex) error {
	if mu.TryLock() {
		return nil
	}

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		// hand the mutex back once the pending Lock eventually succeeds
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return ctx.Err()
	}
}

// Order returns the distinct non-empty keys sorted ascending.
func Order(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ interfaces.Locker = (*Mutexes)(nil)
