package counter

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const memoryShards = 32

// MemoryStore is an in-process Store with per-shard locking, used when Redis
// is not configured and in tests. Keys are spread over fixed shards so
// unrelated transactions never contend on one lock.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	ival      int64
	dval      decimal.Decimal
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]*memoryEntry)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShards]
}

// live returns the entry for key if present and not expired. Caller holds
// the shard lock.
func (sh *memoryShard) live(key string, now time.Time) (*memoryEntry, bool) {
	e, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		delete(sh.entries, key)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, bool) {
	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.live(key, now)
	if !ok {
		e = &memoryEntry{}
		sh.entries[key] = e
	}
	e.ival++
	e.expiresAt = now.Add(ttl)
	return e.ival, true
}

func (s *MemoryStore) GetInt(_ context.Context, key string) (int64, bool) {
	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.live(key, now)
	if !ok {
		return 0, false
	}
	return e.ival, true
}

func (s *MemoryStore) AddAndGet(_ context.Context, key string, delta decimal.Decimal, ttl time.Duration) (decimal.Decimal, bool) {
	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.live(key, now)
	if !ok {
		e = &memoryEntry{dval: decimal.Zero}
		sh.entries[key] = e
	}
	e.dval = e.dval.Add(delta)
	e.expiresAt = now.Add(ttl)
	return e.dval, true
}

func (s *MemoryStore) GetDecimal(_ context.Context, key string) (decimal.Decimal, bool) {
	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.live(key, now)
	if !ok {
		return decimal.Zero, false
	}
	return e.dval, true
}

// Sweep drops expired entries across all shards. The daemon runs this from a
// janitor goroutine so abandoned keys do not accumulate.
func (s *MemoryStore) Sweep() {
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if now.After(e.expiresAt) {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}

// StartJanitor sweeps expired entries every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
