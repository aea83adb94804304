package revocation

import (
	"container/list"
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

const memoryShardCount = 16

// MemoryConfig tunes the in-process store.
type MemoryConfig struct {
	// MaxEntries bounds the total number of retained entries across all
	// shards. When full, the oldest entries are evicted first. Zero means
	// the default of 10000.
	MaxEntries int
	// SweepInterval controls the background eviction of expired entries.
	// Entries also expire lazily on read, so the sweep only reclaims memory
	// for tokens that are never looked up again. Zero disables the sweep.
	SweepInterval time.Duration
}

type memoryEntry struct {
	token     string
	expiresAt int64 // unix milliseconds
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // FIFO of *memoryEntry, oldest at front
}

// MemoryStore is a sharded in-process revocation list with lazy expiry, a
// background sweep, and oldest-first capacity eviction. Shards keep lock
// contention per-key rather than global.
type MemoryStore struct {
	shards    [memoryShardCount]*memoryShard
	perShard  int
	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewMemoryStore creates a MemoryStore and, when cfg.SweepInterval is set,
// starts its sweep goroutine. Call Stop to release it.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	perShard := cfg.MaxEntries / memoryShardCount
	if perShard < 1 {
		perShard = 1
	}

	s := &MemoryStore{
		perShard:  perShard,
		stopSweep: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{
			entries: make(map[string]*list.Element),
			order:   list.New(),
		}
	}

	if cfg.SweepInterval > 0 {
		go s.sweepLoop(cfg.SweepInterval)
	}
	return s
}

func (s *MemoryStore) shard(token string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return s.shards[h.Sum32()%memoryShardCount]
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	now := time.Now()
	if !expiresAt.After(now) {
		log.Printf("authgate: ignoring revocation of already-expired token")
		return nil
	}

	sh := s.shard(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if elem, ok := sh.entries[token]; ok {
		// Idempotent: keep the later expiry so revocation never shortens.
		entry := elem.Value.(*memoryEntry)
		if ms := expiresAt.UnixMilli(); ms > entry.expiresAt {
			entry.expiresAt = ms
		}
		return nil
	}

	for sh.order.Len() >= s.perShard {
		oldest := sh.order.Front()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*memoryEntry)
		delete(sh.entries, entry.token)
		sh.order.Remove(oldest)
	}

	entry := &memoryEntry{token: token, expiresAt: expiresAt.UnixMilli()}
	sh.entries[token] = sh.order.PushBack(entry)
	return nil
}

// IsRevoked implements Store. Expired entries are removed on the way out.
func (s *MemoryStore) IsRevoked(_ context.Context, token string) bool {
	sh := s.shard(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	elem, ok := sh.entries[token]
	if !ok {
		return false
	}
	entry := elem.Value.(*memoryEntry)
	if entry.expiresAt <= time.Now().UnixMilli() {
		delete(sh.entries, token)
		sh.order.Remove(elem)
		return false
	}
	return true
}

// Len reports the number of live entries, counting expired-but-unswept ones.
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += sh.order.Len()
		sh.mu.Unlock()
	}
	return total
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopSweep) })
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopSweep:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	cutoff := now.UnixMilli()
	for _, sh := range s.shards {
		sh.mu.Lock()
		var next *list.Element
		for elem := sh.order.Front(); elem != nil; elem = next {
			next = elem.Next()
			entry := elem.Value.(*memoryEntry)
			if entry.expiresAt <= cutoff {
				delete(sh.entries, entry.token)
				sh.order.Remove(elem)
			}
		}
		sh.mu.Unlock()
	}
}
