// Command authgate-loadtest measures pipeline throughput in-process: a
// validate phase pushing fresh access tokens through Authenticate, and a
// refresh phase recovering expired tokens through the refresh path.
//
// By default the revocation list is the in-memory store. Pass -redis-addr
// (or set REDIS_ADDR) to run against a real Redis, or leave it empty and the
// tool spins up miniredis when -redis is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgate "github.com/playbaseball/authgate"
	"github.com/playbaseball/authgate/revocation"
	"github.com/playbaseball/authgate/routes"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of distinct identities to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + refresh)")
		useRedis    = flag.Bool("redis", false, "back the revocation list with Redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg := authgate.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret-0123456789abcdef")
	cfg.Audit.Enabled = false
	// The throttle is not what is being measured.
	cfg.RateLimit.AuthenticatedCapacity = 1 << 30
	cfg.RateLimit.AnonymousCapacity = 1 << 30
	cfg.RateLimit.MaxKeys = *accounts * 2

	builder := authgate.New().
		WithConfig(cfg).
		WithAccountStore(newSeededStore(*accounts)).
		WithPasswordHasher(noopHasher{})

	cleanup := func() {}
	if *useRedis || *redisAddr != "" {
		addr := *redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
				os.Exit(1)
			}
			addr = mr.Addr()
			cleanup = mr.Close
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		prev := cleanup
		cleanup = func() {
			_ = client.Close()
			prev()
		}
		builder = builder.WithRevocationStore(revocation.NewRedisStore(client))
	}
	defer cleanup()

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	now := time.Now()
	fmt.Printf("seeding tokens for %d accounts...\n", *accounts)
	startSeed := time.Now()

	fresh := make([]string, *accounts)
	expired := make([]string, *accounts)
	refreshes := make([]string, *accounts)
	for i := 0; i < *accounts; i++ {
		email := emailFor(i)
		auths := []string{"ROLE_USER"}
		if fresh[i], err = engine.IssueAccessToken(email, auths, now); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		if expired[i], err = engine.IssueAccessToken(email, auths, now.Add(-2*cfg.JWT.AccessTTL)); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		if refreshes[i], err = engine.IssueRefreshToken(email, auths, now); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	rule := routes.Rule{Pattern: "/api/orders", Access: routes.AccessAuthenticated}

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		idx := r.Intn(*accounts)
		_, err := engine.Authenticate(ctx, authgate.Request{
			AccessToken: fresh[idx],
			Method:      "GET",
			Path:        rule.Pattern,
			ClientIP:    "198.51.100.1",
			UserAgent:   "authgate-loadtest",
			Rule:        rule,
		})
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		idx := r.Intn(*accounts)
		decision, err := engine.Authenticate(ctx, authgate.Request{
			AccessToken:  expired[idx],
			RefreshToken: refreshes[idx],
			Method:       "GET",
			Path:         rule.Pattern,
			ClientIP:     "198.51.100.1",
			UserAgent:    "authgate-loadtest",
			Rule:         rule,
		})
		if err == nil && decision.FreshAccessToken == "" {
			return fmt.Errorf("no fresh token minted")
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func emailFor(i int) string {
	return fmt.Sprintf("load-%d@example.com", i)
}

// seededStore answers GetByEmail for every load-N address without a map: the
// records are derived, never stored.
type seededStore struct {
	count int
}

func newSeededStore(count int) *seededStore {
	return &seededStore{count: count}
}

func (s *seededStore) GetByEmail(_ context.Context, email string) (authgate.AccountRecord, error) {
	return authgate.AccountRecord{
		Email:         email,
		PasswordHash:  "unused",
		Role:          authgate.RoleUser,
		EmailVerified: true,
	}, nil
}

func (s *seededStore) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func (s *seededStore) MarkDeleted(context.Context, string, time.Time) error { return nil }

type noopHasher struct{}

func (noopHasher) Hash(p string) (string, error) { return p, nil }

func (noopHasher) Verify(p, encoded string) (bool, error) { return p == encoded, nil }
