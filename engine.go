package authgate

import (
	"context"
	"time"

	"github.com/playbaseball/authgate/password"
	"github.com/playbaseball/authgate/ratelimit"
	"github.com/playbaseball/authgate/revocation"
	"github.com/playbaseball/authgate/token"
)

// Engine is the authentication pipeline. Construct it with [Builder.Build];
// after that all methods are safe for concurrent use.
type Engine struct {
	config      Config
	codec       *token.Codec
	revocations revocation.Store
	limiter     *ratelimit.Limiter
	accounts    AccountStore
	hasher      password.Hasher
	audit       *auditDispatcher
	metrics     *Metrics

	// ownedRevocations is non-nil when the engine created the default
	// in-memory store and is responsible for stopping its sweeper.
	ownedRevocations *revocation.MemoryStore
}

// Close stops the audit dispatcher, the rate-limiter sweeper, and the
// in-memory revocation sweeper when the engine owns them.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.limiter != nil {
		e.limiter.Stop()
	}
	if e.ownedRevocations != nil {
		e.ownedRevocations.Stop()
	}
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subject string, req Request, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Subject:   subject,
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
		Path:      req.Path,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}

// RefreshTTL exposes the configured refresh-token lifetime, which also
// bounds the refresh cookie Max-Age.
func (e *Engine) RefreshTTL() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.JWT.RefreshTTL
}

// IssueAccessToken mints an access token for subject with the configured TTL.
func (e *Engine) IssueAccessToken(subject string, authorities []string, now time.Time) (string, error) {
	if e == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	return e.codec.Issue(subject, authorities, token.KindAccess, e.config.JWT.AccessTTL, now)
}

// IssueRefreshToken mints a refresh token for subject with the configured TTL.
func (e *Engine) IssueRefreshToken(subject string, authorities []string, now time.Time) (string, error) {
	if e == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	return e.codec.Issue(subject, authorities, token.KindRefresh, e.config.JWT.RefreshTTL, now)
}
