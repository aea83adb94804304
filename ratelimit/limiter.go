// Package ratelimit enforces a per-identity request budget using token
// buckets.
//
// Each identity key owns one bucket. Authenticated callers (keyed by token
// subject) get a larger budget than anonymous callers (keyed by
// clientIP + "|" + userAgent). Refill is continuous and proportional over the
// configured period, never a burst and never retroactive.
package ratelimit

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const shardCount = 16

// Tier selects the bucket capacity for a key.
type Tier uint8

const (
	// TierAnonymous is the IP+UserAgent fingerprint budget.
	TierAnonymous Tier = iota
	// TierAuthenticated is the per-subject budget for valid token holders.
	TierAuthenticated
)

// AnonymousKey builds the best-effort fingerprint key for callers without a
// valid token.
func AnonymousKey(clientIP, userAgent string) string {
	return clientIP + "|" + userAgent
}

// Config tunes the limiter. Zero values fall back to the defaults listed.
type Config struct {
	// AuthenticatedCapacity is the bucket size for TierAuthenticated
	// (default 150).
	AuthenticatedCapacity int
	// AnonymousCapacity is the bucket size for TierAnonymous (default 30).
	AnonymousCapacity int
	// RefillPeriod is the time in which a full capacity is replenished,
	// spread continuously (default 1 minute).
	RefillPeriod time.Duration
	// IdleTimeout evicts buckets not consulted for this long (default 1
	// hour). A recreated bucket starts full: a returning caller after a
	// long idle period gets a fresh budget, which is an accepted
	// approximation of this design.
	IdleTimeout time.Duration
	// MaxKeys bounds the number of tracked keys across all shards; the
	// least recently used keys are evicted first (default 10000).
	MaxKeys int
	// SweepInterval controls the idle-eviction goroutine (default 5
	// minutes; zero disables it).
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.AuthenticatedCapacity <= 0 {
		c.AuthenticatedCapacity = 150
	}
	if c.AnonymousCapacity <= 0 {
		c.AnonymousCapacity = 30
	}
	if c.RefillPeriod <= 0 {
		c.RefillPeriod = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Hour
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	return c
}

type bucketEntry struct {
	key      string
	limiter  *rate.Limiter
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List // most recently used at front
}

// Limiter is a sharded collection of per-key token buckets. Sharding keeps
// contention per-key; a single global lock would serialize every request in
// the process.
type Limiter struct {
	cfg      Config
	perShard int
	shards   [shardCount]*shard

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Limiter and, when cfg.SweepInterval is set, starts its idle
// sweep. Call Stop to release the goroutine.
func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	perShard := cfg.MaxKeys / shardCount
	if perShard < 1 {
		perShard = 1
	}

	l := &Limiter{
		cfg:      cfg,
		perShard: perShard,
		stop:     make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{
			buckets: make(map[string]*list.Element),
			lru:     list.New(),
		}
	}
	if cfg.SweepInterval > 0 {
		go l.sweepLoop(cfg.SweepInterval)
	}
	return l
}

// Allow consumes one unit from the key's bucket, creating it lazily at full
// capacity on first observation. It returns false, leaving the bucket
// untouched, when the budget is exhausted. Concurrent callers of the same
// key are serialized by the shard lock, so two simultaneous requests never
// both succeed on a single remaining unit.
func (l *Limiter) Allow(key string, tier Tier) bool {
	return l.allowAt(key, tier, time.Now())
}

func (l *Limiter) allowAt(key string, tier Tier, now time.Time) bool {
	sh := l.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if elem, ok := sh.buckets[key]; ok {
		sh.lru.MoveToFront(elem)
		entry := elem.Value.(*bucketEntry)
		entry.lastSeen = now
		return entry.limiter.AllowN(now, 1)
	}

	for sh.lru.Len() >= l.perShard {
		oldest := sh.lru.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*bucketEntry)
		delete(sh.buckets, entry.key)
		sh.lru.Remove(oldest)
	}

	capacity := l.capacity(tier)
	entry := &bucketEntry{
		key: key,
		// capacity units per RefillPeriod, spread continuously.
		limiter:  rate.NewLimiter(rate.Limit(float64(capacity)/l.cfg.RefillPeriod.Seconds()), capacity),
		lastSeen: now,
	}
	sh.buckets[key] = sh.lru.PushFront(entry)
	return entry.limiter.AllowN(now, 1)
}

func (l *Limiter) capacity(tier Tier) int {
	if tier == TierAuthenticated {
		return l.cfg.AuthenticatedCapacity
	}
	return l.cfg.AnonymousCapacity
}

func (l *Limiter) shard(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	total := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		total += sh.lru.Len()
		sh.mu.Unlock()
	}
	return total
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle(now time.Time) {
	for _, sh := range l.shards {
		sh.mu.Lock()
		var next *list.Element
		for elem := sh.lru.Front(); elem != nil; elem = next {
			next = elem.Next()
			entry := elem.Value.(*bucketEntry)
			if now.Sub(entry.lastSeen) > l.cfg.IdleTimeout {
				delete(sh.buckets, entry.key)
				sh.lru.Remove(elem)
			}
		}
		sh.mu.Unlock()
	}
}
