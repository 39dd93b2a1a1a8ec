package internaldefs

import (
	"github.com/nigussolomon/nonceauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   nonceauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   nonceauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: nonceauth.MetricRegisterSuccess, Name: "nonceauth_register_success_total", Help: "Successful registrations."},
	{ID: nonceauth.MetricRegisterDuplicate, Name: "nonceauth_register_duplicate_total", Help: "Registrations rejected because the identifier exists."},
	{ID: nonceauth.MetricRegisterFailure, Name: "nonceauth_register_failure_total", Help: "Registrations that failed for any other reason."},
	{ID: nonceauth.MetricLoginSuccess, Name: "nonceauth_login_success_total", Help: "Successful login attempts."},
	{ID: nonceauth.MetricLoginFailure, Name: "nonceauth_login_failure_total", Help: "Failed login attempts."},
	{ID: nonceauth.MetricRefreshSuccess, Name: "nonceauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: nonceauth.MetricRefreshFailure, Name: "nonceauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: nonceauth.MetricRefreshReuseDetected, Name: "nonceauth_refresh_reuse_detected_total", Help: "Refresh tokens presented with a stale nonce."},
	{ID: nonceauth.MetricRefreshRaceLost, Name: "nonceauth_refresh_race_lost_total", Help: "Refresh calls that lost the conditional update to a concurrent call."},
	{ID: nonceauth.MetricRefreshRevoked, Name: "nonceauth_refresh_revoked_total", Help: "Sessions cleared after refresh reuse."},
	{ID: nonceauth.MetricSessionIssued, Name: "nonceauth_session_issued_total", Help: "Token pairs issued and persisted."},
	{ID: nonceauth.MetricSessionIssueFailure, Name: "nonceauth_session_issue_failure_total", Help: "Token pairs that could not be persisted."},
	{ID: nonceauth.MetricLogout, Name: "nonceauth_logout_total", Help: "Successful logouts."},
	{ID: nonceauth.MetricLogoutFailure, Name: "nonceauth_logout_failure_total", Help: "Logouts that matched no user."},
	{ID: nonceauth.MetricValidateSuccess, Name: "nonceauth_validate_success_total", Help: "Access tokens accepted."},
	{ID: nonceauth.MetricValidateFailure, Name: "nonceauth_validate_failure_total", Help: "Access tokens rejected."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: nonceauth.MetricValidateLatency, Name: "nonceauth_validate_latency_seconds", Help: "Access validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "nonceauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramBounds are nonceauth.HistogramBucketBounds in seconds. The
// unbounded last bucket has no entry.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
