// Package middleware adapts the authgate engine to net/http: the Gate
// middleware runs the pipeline for every request, login/logout handlers
// manage the credential lifecycle, and every rejection is written as the
// standard JSON error body.
package middleware
