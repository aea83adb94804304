package authgate

import (
	"errors"

	"github.com/playbaseball/authgate/password"
	"github.com/playbaseball/authgate/ratelimit"
	"github.com/playbaseball/authgate/revocation"
	"github.com/playbaseball/authgate/token"
)

// Builder assembles an [Engine]. A Builder is single-use: Build succeeds at
// most once.
type Builder struct {
	config Config

	accounts    AccountStore
	hasher      password.Hasher
	revocations revocation.Store
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the account lookup backend. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithPasswordHasher replaces the default Argon2id hasher.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithRevocationStore replaces the default in-memory revocation list, e.g.
// with [revocation.NewRedisStore] when replicas must share one list.
func (b *Builder) WithRevocationStore(store revocation.Store) *Builder {
	b.revocations = store
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counter system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the pipeline latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		codec:    codec,
		accounts: b.accounts,
	}

	engine.revocations = b.revocations
	if engine.revocations == nil {
		mem := revocation.NewMemoryStore(revocation.MemoryConfig{
			MaxEntries:    cfg.Revocation.MaxEntries,
			SweepInterval: cfg.Revocation.SweepInterval,
		})
		engine.revocations = mem
		engine.ownedRevocations = mem
	}

	engine.limiter = ratelimit.New(ratelimit.Config{
		AuthenticatedCapacity: cfg.RateLimit.AuthenticatedCapacity,
		AnonymousCapacity:     cfg.RateLimit.AnonymousCapacity,
		RefillPeriod:          cfg.RateLimit.RefillPeriod,
		IdleTimeout:           cfg.RateLimit.IdleTimeout,
		MaxKeys:               cfg.RateLimit.MaxKeys,
	})

	engine.hasher = b.hasher
	if engine.hasher == nil {
		ph, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		engine.hasher = ph
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
