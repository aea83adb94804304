// Package token implements the signing and parsing of the self-contained
// bearer tokens used by the authentication pipeline.
//
// Tokens come in two kinds: short-lived access tokens presented on every API
// call, and long-lived refresh tokens exchanged only for new access tokens.
// Both embed the subject, a comma-joined authority list, issued-at and expiry
// timestamps, and a random jti.
//
// The package is pure: it performs no I/O, keeps no state, and classifies
// every parse failure into a small sentinel error set so the pipeline can
// branch on the failure kind instead of inspecting error text.
package token
