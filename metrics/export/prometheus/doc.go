// Package prometheus renders authgate engine metrics in Prometheus text
// exposition format. It lives outside the root package so the engine itself
// carries no exporter dependency.
package prometheus
