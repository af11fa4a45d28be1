package internaldefs

import (
	authcore "github.com/callvault/authcore"
)

// CounterDef binds one engine counter to its exported metric name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported metric name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignupSuccess, Name: "authcore_signup_success_total", Help: "Identities created."},
	{ID: authcore.MetricSignupValidationFailure, Name: "authcore_signup_validation_failure_total", Help: "Signups rejected by email or password policy."},
	{ID: authcore.MetricSignupDuplicate, Name: "authcore_signup_duplicate_total", Help: "Signups rejected for an already registered email."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Logins that issued a session token."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authcore.MetricLoginUnverified, Name: "authcore_login_unverified_total", Help: "Logins refused pending email verification."},
	{ID: authcore.MetricRateLimited, Name: "authcore_rate_limited_total", Help: "Flow requests denied by the rate limiter."},
	{ID: authcore.MetricRateLimitFailOpen, Name: "authcore_rate_limit_fail_open_total", Help: "Limiter checks allowed because the attempt store was unreachable."},
	{ID: authcore.MetricLockoutTriggered, Name: "authcore_lockout_triggered_total", Help: "Identifiers moved into lockout."},
	{ID: authcore.MetricVerificationRequested, Name: "authcore_verification_requested_total", Help: "Email verification tokens minted."},
	{ID: authcore.MetricVerificationSuccess, Name: "authcore_verification_success_total", Help: "Emails verified."},
	{ID: authcore.MetricVerificationFailure, Name: "authcore_verification_failure_total", Help: "Invalid or expired verification tokens presented."},
	{ID: authcore.MetricResetRequested, Name: "authcore_reset_requested_total", Help: "Password reset tokens minted."},
	{ID: authcore.MetricResetSuccess, Name: "authcore_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricResetFailure, Name: "authcore_reset_failure_total", Help: "Rejected password reset confirmations."},
	{ID: authcore.MetricEnumerationProbe, Name: "authcore_enumeration_probe_total", Help: "Uniform responses served for unknown accounts."},
	{ID: authcore.MetricSessionIssued, Name: "authcore_session_issued_total", Help: "Session tokens signed."},
	{ID: authcore.MetricSessionRejected, Name: "authcore_session_rejected_total", Help: "Session tokens that failed validation."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Credential operations failed closed on storage errors."},
	{ID: authcore.MetricEmailEnqueued, Name: "authcore_email_enqueued_total", Help: "Email side effects handed to the dispatcher."},
	{ID: authcore.MetricSweepRemoved, Name: "authcore_sweep_removed_total", Help: "Attempt windows removed by housekeeping."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricHashLatency, Name: "authcore_hash_latency_seconds", Help: "Password hashing latency histogram."},
}

// HistogramBoundsSeconds are the upper bounds of the engine's fixed latency
// buckets, in seconds. The last bucket is +Inf.
var HistogramBoundsSeconds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for flat gauge exports.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed bucket
// count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
