package revocation

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rvk:"

// RedisStore is a revocation list shared across process replicas. Each entry
// is a Redis key whose TTL equals the revoked token's remaining lifetime, so
// eviction is handled entirely by Redis.
//
// IsRevoked fails closed on Redis errors: an unreachable backend reports the
// token as revoked rather than trusting a credential it cannot check.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// Revoke implements Store.
func (s *RedisStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		log.Printf("authgate: ignoring revocation of already-expired token")
		return nil
	}
	return s.redis.Set(ctx, s.key(token), "1", ttl).Err()
}

// IsRevoked implements Store.
func (s *RedisStore) IsRevoked(ctx context.Context, token string) bool {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		log.Printf("authgate: revocation lookup failed, failing closed: %v", err)
		return true
	}
	return n > 0
}
