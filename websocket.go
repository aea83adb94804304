package authgate

import (
	"context"
	"strings"
	"time"

	"github.com/playbaseball/authgate/token"
)

// AuthenticateHandshake validates the Authorization value of a WebSocket
// upgrade request. Chat channels carry the same access requirements as
// verified-only HTTP routes: a live, access-kind token whose account is
// neither deleted nor banned, with a verified email unless the caller is an
// admin. Transport mechanics stay with the caller; this is only the gate.
func (e *Engine) AuthenticateHandshake(ctx context.Context, authorization string) (*Principal, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	now := time.Now()

	raw := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	check := e.checkToken(ctx, raw, token.KindAccess, now)
	if check.status != tokenValid {
		e.metricInc(MetricHandshakeRejected)
		err := handshakeError(check.status)
		e.emitAudit(ctx, auditEventHandshakeRefused, false, rateSubject(check), Request{Path: "/ws"}, err, nil)
		return nil, err
	}

	p, err := e.resolvePrincipal(ctx, check.claims)
	if err != nil {
		e.metricInc(MetricHandshakeRejected)
		return nil, err
	}
	switch {
	case p.Deleted():
		err = ErrAccountDeleted
	case p.Role == RoleBanned:
		err = ErrAccountBanned
	case !p.EmailVerified && p.Role != RoleAdmin:
		err = ErrEmailVerificationRequired
	}
	if err != nil {
		e.metricInc(MetricHandshakeRejected)
		e.emitAudit(ctx, auditEventHandshakeRefused, false, p.Email, Request{Path: "/ws"}, err, nil)
		return nil, err
	}

	e.metricInc(MetricHandshakeAccepted)
	return p, nil
}

func handshakeError(status tokenStatus) error {
	switch status {
	case tokenAbsent:
		return ErrUnauthenticated
	case tokenExpired:
		return ErrTokenExpired
	case tokenRevoked:
		return ErrTokenRevoked
	case tokenSignatureInvalid:
		return ErrInvalidSignature
	default:
		return ErrTokenMalformed
	}
}
