package authgate

import (
	"errors"
	"time"
)

// Config defines all tunables of an [Engine]. Zero values fall back to the
// defaults documented per field; [DefaultConfig] returns the fully populated
// baseline.
type Config struct {
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Revocation RevocationConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// JWTConfig holds token signing and lifetime parameters.
type JWTConfig struct {
	// SigningMethod is "hs256" (default) or "ed25519".
	SigningMethod string
	// Secret is the HS256 shared key, at least 32 bytes.
	Secret []byte
	// PrivateKey/PublicKey are the Ed25519 pair, raw or PEM.
	PrivateKey []byte
	PublicKey  []byte
	// Issuer is stamped into and verified on every token.
	Issuer string
	// AccessTTL bounds access tokens (default 30 minutes).
	AccessTTL time.Duration
	// RefreshTTL bounds refresh tokens (default 7 days). Refresh TTL also
	// bounds how long a revocation entry must be retained.
	RefreshTTL time.Duration
	// Leeway is applied to exp/iat comparisons during parsing.
	Leeway time.Duration
}

// RateLimitConfig holds the per-identity token-bucket parameters.
type RateLimitConfig struct {
	// AuthenticatedCapacity is the bucket size for callers presenting a valid
	// access token (default 150 per RefillPeriod).
	AuthenticatedCapacity int
	// AnonymousCapacity is the bucket size for everyone else (default 30).
	AnonymousCapacity int
	// RefillPeriod is the window over which a full bucket regenerates
	// (default one minute).
	RefillPeriod time.Duration
	// IdleTimeout evicts buckets untouched for this long (default one hour).
	IdleTimeout time.Duration
	// MaxKeys bounds tracked identities (default 10000).
	MaxKeys int
}

// RevocationConfig holds the in-memory revocation list bounds. Ignored when a
// custom store is supplied to the builder.
type RevocationConfig struct {
	// MaxEntries bounds the list; oldest entries are evicted first
	// (default 10000).
	MaxEntries int
	// SweepInterval is the cadence of the background expiry sweep.
	SweepInterval time.Duration
}

// AuditConfig controls the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events under backpressure instead of blocking the
	// request path; drops are counted.
	DropIfFull bool
}

// MetricsConfig controls the in-process counter system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: HS256, 30 minute access
// tokens, 7 day refresh tokens, 150/30 requests per minute, audit and metrics
// enabled.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			Issuer:        "play_baseball",
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			AuthenticatedCapacity: 150,
			AnonymousCapacity:     30,
			RefillPeriod:          time.Minute,
			IdleTimeout:           time.Hour,
			MaxKeys:               10000,
		},
		Revocation: RevocationConfig{
			MaxEntries: 10000,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("JWT.Secret must be at least 32 bytes for hs256")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("JWT.PublicKey required for ed25519")
		}
	default:
		return errors.New("JWT.SigningMethod must be hs256 or ed25519")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT.Issuer required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT.RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway out of range")
	}
	if c.RateLimit.AuthenticatedCapacity < 0 || c.RateLimit.AnonymousCapacity < 0 {
		return errors.New("RateLimit capacities must not be negative")
	}
	if c.RateLimit.RefillPeriod < 0 {
		return errors.New("RateLimit.RefillPeriod must not be negative")
	}
	if c.Revocation.MaxEntries < 0 {
		return errors.New("Revocation.MaxEntries must not be negative")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
