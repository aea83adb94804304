package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	authgate "github.com/playbaseball/authgate"
)

type metricsSource interface {
	MetricsSnapshot() authgate.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authgate.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authgate.MetricRequestAllowed, "authgate_request_allowed_total", "Requests admitted by the pipeline."},
	{authgate.MetricRateLimited, "authgate_rate_limited_total", "Requests denied by the token bucket."},
	{authgate.MetricTokenMalformed, "authgate_token_malformed_total", "Structurally invalid tokens."},
	{authgate.MetricTokenSignatureInvalid, "authgate_token_signature_invalid_total", "Tokens failing signature verification."},
	{authgate.MetricTokenExpired, "authgate_token_expired_total", "Expired access tokens."},
	{authgate.MetricTokenRevoked, "authgate_token_revoked_total", "Revoked tokens presented after logout."},
	{authgate.MetricRefreshSuccess, "authgate_refresh_success_total", "Successful refresh-on-expiry recoveries."},
	{authgate.MetricRefreshFailure, "authgate_refresh_failure_total", "Failed refresh attempts."},
	{authgate.MetricStatusDeleted, "authgate_status_deleted_total", "Requests rejected for deleted accounts."},
	{authgate.MetricStatusBanned, "authgate_status_banned_total", "Requests rejected for banned accounts."},
	{authgate.MetricStatusUnverified, "authgate_status_unverified_total", "Verification-gate rejections."},
	{authgate.MetricPrincipalNotFound, "authgate_principal_not_found_total", "Tokens whose subject no longer resolves."},
	{authgate.MetricLoginSuccess, "authgate_login_success_total", "Successful logins."},
	{authgate.MetricLoginFailure, "authgate_login_failure_total", "Failed logins."},
	{authgate.MetricLogout, "authgate_logout_total", "Logouts."},
	{authgate.MetricDeactivation, "authgate_deactivation_total", "Account self-deactivations."},
	{authgate.MetricHandshakeAccepted, "authgate_handshake_accepted_total", "Accepted WebSocket handshakes."},
	{authgate.MetricHandshakeRejected, "authgate_handshake_rejected_total", "Rejected WebSocket handshakes."},
}

const (
	latencyName = "authgate_authenticate_latency_seconds"
	latencyHelp = "Authenticate pipeline latency histogram."
)

var histogramBounds = []string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// Exporter renders authgate metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an exporter reading from the given engine.
func NewExporter(engine *authgate.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an exporter from a custom metrics source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the rendered metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in text exposition format. Disabled
// metrics render as the empty string.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range counterDefs {
		writeCounter(&b, def.name, def.help, snapshot.Counters[def.id])
	}

	if raw, ok := snapshot.Histograms[authgate.MetricAuthenticateLatency]; ok {
		writeHistogram(&b, latencyName, latencyHelp, cumulative(raw))
	}

	writeCounter(&b, "authgate_audit_dropped_total", "Audit events dropped under dispatcher backpressure.", dropped)

	return b.String()
}

func cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, buckets [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range histogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(buckets[i], 10))
		b.WriteByte('\n')
	}

	count := buckets[len(buckets)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Sum is not tracked by the core snapshot; keep a stable field.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
