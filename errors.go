package authgate

import (
	"errors"
	"net/http"
)

var (
	// ErrRateLimited means the caller exhausted its token bucket.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenMalformed means the presented credential is not a valid token.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrInvalidSignature means the token failed signature verification.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrTokenExpired means the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked means the token appears on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrPrincipalNotFound means the token subject no longer resolves to an
	// account. Reported to clients as a generic authentication failure.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrAccountDeleted means the account carries a deletion timestamp.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrAccountBanned means the account holds the banned role.
	ErrAccountBanned = errors.New("account banned")
	// ErrEmailVerificationRequired means the route demands a verified email
	// address the account does not have.
	ErrEmailVerificationRequired = errors.New("email verification required")
	// ErrUnauthenticated means no usable credential accompanied the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials is returned by Login for a bad email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden means the principal lacks the role the route requires.
	ErrForbidden = errors.New("forbidden")
	// ErrEngineNotReady is returned when a nil or unbuilt engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Category maps an engine error to its stable taxonomy name, the value
// surfaced in the "error" field of JSON error bodies. Internals never leak:
// anything outside the taxonomy collapses to "Internal", and a vanished
// principal is indistinguishable from a missing credential.
func Category(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrTokenMalformed):
		return "Malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, ErrTokenExpired):
		return "Expired"
	case errors.Is(err, ErrTokenRevoked):
		return "Revoked"
	case errors.Is(err, ErrAccountDeleted):
		return "AccountDeleted"
	case errors.Is(err, ErrAccountBanned):
		return "AccountBanned"
	case errors.Is(err, ErrEmailVerificationRequired):
		return "EmailVerificationRequired"
	case errors.Is(err, ErrInvalidCredentials):
		return "InvalidCredentials"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrPrincipalNotFound):
		return "Unauthenticated"
	default:
		return "Internal"
	}
}

// HTTPStatus maps an engine error to the response status the middleware
// writes: 429 for throttling, 401 for credential problems, 403 for account
// and role gates, 500 otherwise.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrPrincipalNotFound),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountDeleted),
		errors.Is(err, ErrAccountBanned),
		errors.Is(err, ErrEmailVerificationRequired),
		errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
