// Package authgate provides a request-authentication and access-gating
// pipeline for multi-tenant web APIs: stateless JWT bearer credentials, a
// TTL-bounded revocation list, per-identity token-bucket rate limiting,
// account-status gating, and transparent refresh-on-expiry. There is no
// server-side session store; a token plus the live account record is the
// whole authentication state.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Principal, Decision, MetricsSnapshot). The token,
// revocation, ratelimit, routes and password sub-packages hold the mechanics;
// middleware adapts the engine to net/http.
//
// # Performance contract
//
// Authenticate is the hot path. Token parsing, revocation lookup, and rate
// accounting are in-process; the single account-store round-trip happens only
// after the rate check has passed.
package authgate
