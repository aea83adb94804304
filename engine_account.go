package authgate

import (
	"context"
	"log"
	"time"

	"github.com/playbaseball/authgate/token"
)

// Login verifies email+password, rejects deleted accounts, and mints an
// access+refresh pair. Last-login bookkeeping is best-effort and never blocks
// a successful login.
func (e *Engine) Login(ctx context.Context, email, pass string) (TokenPair, *Principal, error) {
	if e == nil || e.hasher == nil {
		return TokenPair{}, nil, ErrEngineNotReady
	}
	req := Request{Path: "/api/auth/login"}

	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, email, req, ErrInvalidCredentials, map[string]string{"reason": "empty_input"})
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	record, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, email, req, ErrInvalidCredentials, map[string]string{"reason": "account_not_found"})
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, record.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, email, req, ErrInvalidCredentials, map[string]string{"reason": "password_mismatch"})
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pass = ""

	if record.DeletedAt != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, email, req, ErrAccountDeleted, map[string]string{"reason": "account_deleted"})
		return TokenPair{}, nil, ErrAccountDeleted
	}

	now := time.Now()
	authorities := AuthoritiesForRole(record.Role)

	access, err := e.IssueAccessToken(record.Email, authorities, now)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, nil, err
	}
	refresh, err := e.IssueRefreshToken(record.Email, authorities, now)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, nil, err
	}

	if err := e.accounts.UpdateLastLogin(ctx, record.Email, now); err != nil {
		log.Print("authgate: last-login update failed")
	}

	principal := &Principal{
		Email:         record.Email,
		Role:          record.Role,
		Authorities:   authorities,
		EmailVerified: record.EmailVerified,
		DeletedAt:     record.DeletedAt,
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, record.Email, req, nil, nil)

	return TokenPair{AccessToken: access, RefreshToken: refresh}, principal, nil
}

// Logout places the presented access token on the revocation list until its
// natural expiry. Revoking an already-expired or unparseable token is a
// no-op; double logout is idempotent.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	now := time.Now()

	claims, err := e.codec.Parse(accessToken, now)
	if err != nil {
		// Nothing to revoke; an expired token can no longer authenticate.
		return nil
	}
	if err := e.revocations.Revoke(ctx, accessToken, claims.Expiry()); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, Request{Path: "/api/auth/logout"}, nil, nil)
	return nil
}

// DeactivateAccount marks the caller's account deleted and revokes the token
// that authorized the call. Any other still-live token for the account fails
// the deletion gate on its next use.
func (e *Engine) DeactivateAccount(ctx context.Context, accessToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	now := time.Now()

	check := e.checkToken(ctx, accessToken, token.KindAccess, now)
	switch check.status {
	case tokenValid:
	case tokenRevoked:
		return ErrTokenRevoked
	case tokenExpired:
		return ErrTokenExpired
	case tokenAbsent:
		return ErrUnauthenticated
	default:
		return ErrTokenMalformed
	}

	if _, err := e.accounts.GetByEmail(ctx, check.claims.Subject); err != nil {
		return ErrPrincipalNotFound
	}
	if err := e.accounts.MarkDeleted(ctx, check.claims.Subject, now); err != nil {
		return err
	}
	if err := e.revocations.Revoke(ctx, accessToken, check.claims.Expiry()); err != nil {
		log.Print("authgate: token revocation failed after deactivation")
	}

	e.metricInc(MetricDeactivation)
	e.emitAudit(ctx, auditEventDeactivation, true, check.claims.Subject, Request{}, nil, nil)
	return nil
}
