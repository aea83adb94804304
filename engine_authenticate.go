package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/playbaseball/authgate/ratelimit"
	"github.com/playbaseball/authgate/routes"
	"github.com/playbaseball/authgate/token"
)

// Request carries everything the pipeline needs to judge one inbound call.
// Rule is the route classification the caller obtained from a routes.Table.
type Request struct {
	// AccessToken is the bearer value from the Authorization header, without
	// the "Bearer " prefix. Empty when absent.
	AccessToken string
	// RefreshToken is the refresh cookie value. Empty when absent.
	RefreshToken string

	Method    string
	Path      string
	ClientIP  string
	UserAgent string

	Rule routes.Rule
}

// Decision is the pipeline outcome for an admitted request. Principal is nil
// for anonymous access to public routes. FreshAccessToken is set when an
// expired credential was transparently recovered through the refresh token;
// the middleware hands it back to the client in the Authorization response
// header.
type Decision struct {
	Principal        *Principal
	FreshAccessToken string
}

// tokenStatus is the classified outcome of one local token inspection. The
// pipeline branches on it explicitly; parse failures are data, not control
// flow.
type tokenStatus uint8

const (
	tokenAbsent tokenStatus = iota
	tokenValid
	tokenMalformed
	tokenSignatureInvalid
	tokenExpired
	tokenRevoked
	tokenWrongKind
)

type tokenCheck struct {
	status tokenStatus
	claims *token.Claims
}

// checkToken inspects raw without touching the account store: parse, kind
// check, revocation lookup. All in-process.
func (e *Engine) checkToken(ctx context.Context, raw string, kind token.Kind, now time.Time) tokenCheck {
	if raw == "" {
		return tokenCheck{status: tokenAbsent}
	}
	claims, err := e.codec.Parse(raw, now)
	if err != nil {
		switch {
		case isTokenErr(err, token.ErrSignatureInvalid):
			return tokenCheck{status: tokenSignatureInvalid}
		case isTokenErr(err, token.ErrExpired):
			return tokenCheck{status: tokenExpired}
		default:
			return tokenCheck{status: tokenMalformed}
		}
	}
	if claims.Kind() != kind {
		return tokenCheck{status: tokenWrongKind, claims: claims}
	}
	if e.revocations.IsRevoked(ctx, raw) {
		return tokenCheck{status: tokenRevoked, claims: claims}
	}
	return tokenCheck{status: tokenValid, claims: claims}
}

// Authenticate runs the gating pipeline in strict order: local token
// inspection, rate check, public-route handling, access validation with a
// single refresh attempt, status gate, bind. The clock is observed once and
// threaded through every comparison.
func (e *Engine) Authenticate(ctx context.Context, req Request) (Decision, error) {
	if e == nil || e.codec == nil {
		return Decision{}, ErrEngineNotReady
	}

	now := time.Now()
	if e.metrics.LatencyEnabled() {
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(now))
		}()
	}

	// Step 1: local inspection only, to know who is asking.
	access := e.checkToken(ctx, req.AccessToken, token.KindAccess, now)

	// Step 2: rate check. Expired and invalid tokens do not earn the
	// authenticated budget.
	key, tier := rateIdentity(access, req)
	if !e.limiter.Allow(key, tier) {
		e.metricInc(MetricRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, rateSubject(access), req, ErrRateLimited, nil)
		return Decision{}, ErrRateLimited
	}

	// Step 3: public routes proceed anonymously, with one exception: a fully
	// valid token resolving to a deleted account is still rejected, so
	// deletion takes effect immediately even on open endpoints.
	if req.Rule.Access == routes.AccessPublic {
		return e.authenticatePublic(ctx, req, access)
	}

	// Step 4: access validation, with at most one refresh attempt.
	switch access.status {
	case tokenValid:
		p, err := e.resolvePrincipal(ctx, access.claims)
		if err != nil {
			return Decision{}, err
		}
		if err := e.statusGate(ctx, p, req); err != nil {
			return Decision{}, err
		}
		e.metricInc(MetricRequestAllowed)
		return Decision{Principal: p}, nil

	case tokenExpired, tokenAbsent:
		if access.status == tokenExpired {
			e.metricInc(MetricTokenExpired)
		}
		return e.refreshAttempt(ctx, req, now)

	case tokenRevoked:
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEventRevokedTokenUse, false, access.claims.Subject, req, ErrTokenRevoked, nil)
		return Decision{}, ErrTokenRevoked

	case tokenSignatureInvalid:
		e.metricInc(MetricTokenSignatureInvalid)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", req, ErrInvalidSignature, nil)
		return Decision{}, ErrInvalidSignature

	default: // tokenMalformed, tokenWrongKind
		e.metricInc(MetricTokenMalformed)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", req, ErrTokenMalformed, nil)
		return Decision{}, ErrTokenMalformed
	}
}

func (e *Engine) authenticatePublic(ctx context.Context, req Request, access tokenCheck) (Decision, error) {
	if access.status != tokenValid {
		e.metricInc(MetricRequestAllowed)
		return Decision{}, nil
	}

	p, err := e.resolvePrincipal(ctx, access.claims)
	if err != nil {
		// A vanished subject does not block an open endpoint.
		e.metricInc(MetricRequestAllowed)
		return Decision{}, nil
	}
	if p.Deleted() && !req.Rule.SelfService {
		e.metricInc(MetricStatusDeleted)
		e.emitAudit(ctx, auditEventStatusRejected, false, p.Email, req, ErrAccountDeleted, nil)
		return Decision{}, ErrAccountDeleted
	}
	if p.Role == RoleBanned && !req.Rule.SelfService {
		// Banned callers browse public routes as anonymous.
		e.metricInc(MetricRequestAllowed)
		return Decision{}, nil
	}
	e.metricInc(MetricRequestAllowed)
	return Decision{Principal: p}, nil
}

// refreshAttempt exchanges a valid refresh token for a fresh access token.
// It runs at most once per request; any failure is an authentication failure
// for the whole request.
func (e *Engine) refreshAttempt(ctx context.Context, req Request, now time.Time) (Decision, error) {
	refresh := e.checkToken(ctx, req.RefreshToken, token.KindRefresh, now)
	switch refresh.status {
	case tokenValid:
	case tokenAbsent:
		return Decision{}, ErrUnauthenticated
	case tokenExpired:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", req, ErrTokenExpired, nil)
		return Decision{}, ErrTokenExpired
	case tokenRevoked:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, refresh.claims.Subject, req, ErrTokenRevoked, nil)
		return Decision{}, ErrTokenRevoked
	case tokenSignatureInvalid:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", req, ErrInvalidSignature, nil)
		return Decision{}, ErrInvalidSignature
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", req, ErrTokenMalformed, nil)
		return Decision{}, ErrTokenMalformed
	}

	p, err := e.resolvePrincipal(ctx, refresh.claims)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return Decision{}, err
	}
	if err := e.statusGate(ctx, p, req); err != nil {
		e.metricInc(MetricRefreshFailure)
		return Decision{}, err
	}

	minted, err := e.IssueAccessToken(refresh.claims.Subject, refresh.claims.AuthorityList(), now)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return Decision{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricRequestAllowed)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.Email, req, nil, nil)
	return Decision{Principal: p, FreshAccessToken: minted}, nil
}

// resolvePrincipal maps token claims to a live account. Authorities come
// from the token; status flags come from the store.
func (e *Engine) resolvePrincipal(ctx context.Context, claims *token.Claims) (*Principal, error) {
	record, err := e.accounts.GetByEmail(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricPrincipalNotFound)
		return nil, ErrPrincipalNotFound
	}
	return &Principal{
		Email:         record.Email,
		Role:          record.Role,
		Authorities:   claims.AuthorityList(),
		EmailVerified: record.EmailVerified,
		DeletedAt:     record.DeletedAt,
	}, nil
}

// statusGate enforces the account-status rules for protected routes:
// deletion always wins, banned accounts reach only the self-service
// allow-list (with authorities stripped), and verification-required routes
// reject unverified non-admin accounts.
func (e *Engine) statusGate(ctx context.Context, p *Principal, req Request) error {
	if p.Deleted() && !req.Rule.SelfService {
		e.metricInc(MetricStatusDeleted)
		e.emitAudit(ctx, auditEventStatusRejected, false, p.Email, req, ErrAccountDeleted, nil)
		return ErrAccountDeleted
	}
	if p.Role == RoleBanned {
		if !req.Rule.SelfService {
			e.metricInc(MetricStatusBanned)
			e.emitAudit(ctx, auditEventStatusRejected, false, p.Email, req, ErrAccountBanned, nil)
			return ErrAccountBanned
		}
		p.Authorities = nil
	}
	if req.Rule.Access == routes.AccessVerified && !p.EmailVerified && p.Role != RoleAdmin {
		e.metricInc(MetricStatusUnverified)
		e.emitAudit(ctx, auditEventStatusRejected, false, p.Email, req, ErrEmailVerificationRequired, nil)
		return ErrEmailVerificationRequired
	}
	return nil
}

func rateIdentity(access tokenCheck, req Request) (string, ratelimit.Tier) {
	if access.status == tokenValid {
		return access.claims.Subject, ratelimit.TierAuthenticated
	}
	return ratelimit.AnonymousKey(req.ClientIP, req.UserAgent), ratelimit.TierAnonymous
}

func rateSubject(access tokenCheck) string {
	if access.claims != nil {
		return access.claims.Subject
	}
	return ""
}

func isTokenErr(err, target error) bool {
	return errors.Is(err, target)
}
