package internaldefs

import (
	identity "github.com/orionworks/identity"
)

// CounterDef defines a public type used by identity APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by identity APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the identity engine.
var CounterDefs = []CounterDef{
	{ID: identity.MetricLoginSuccess, Name: "identity_login_success_total", Help: "Successful login attempts."},
	{ID: identity.MetricLoginFailure, Name: "identity_login_failure_total", Help: "Failed login attempts."},
	{ID: identity.MetricLoginRateLimited, Name: "identity_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: identity.MetricRegisterSuccess, Name: "identity_register_success_total", Help: "Successful registrations."},
	{ID: identity.MetricRegisterDuplicate, Name: "identity_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: identity.MetricRegisterInvalid, Name: "identity_register_invalid_total", Help: "Registrations rejected for invalid input."},
	{ID: identity.MetricEmailConfirmSuccess, Name: "identity_email_confirm_success_total", Help: "Successful e-mail confirmations."},
	{ID: identity.MetricEmailConfirmFailure, Name: "identity_email_confirm_failure_total", Help: "Failed e-mail confirmations."},
	{ID: identity.MetricEmailChanged, Name: "identity_email_changed_total", Help: "E-mail change operations."},
	{ID: identity.MetricPasswordChangeSuccess, Name: "identity_password_change_success_total", Help: "Successful password changes."},
	{ID: identity.MetricPasswordChangeFailure, Name: "identity_password_change_failure_total", Help: "Failed password changes."},
	{ID: identity.MetricPasswordRecovered, Name: "identity_password_recovered_total", Help: "Password recovery operations."},
	{ID: identity.MetricTwoFactorEnrolled, Name: "identity_two_factor_enrolled_total", Help: "Two-factor enrollments."},
	{ID: identity.MetricTwoFactorSuccess, Name: "identity_two_factor_success_total", Help: "Successful two-factor verifications."},
	{ID: identity.MetricTwoFactorFailure, Name: "identity_two_factor_failure_total", Help: "Failed two-factor verifications."},
	{ID: identity.MetricTwoFactorRateLimited, Name: "identity_two_factor_rate_limited_total", Help: "Rate-limited two-factor attempts."},
	{ID: identity.MetricPasskeyRegistered, Name: "identity_passkey_registered_total", Help: "Registered passkeys."},
	{ID: identity.MetricPasskeyLoginSuccess, Name: "identity_passkey_login_success_total", Help: "Successful passkey logins."},
	{ID: identity.MetricPasskeyLoginFailure, Name: "identity_passkey_login_failure_total", Help: "Failed passkey logins."},
	{ID: identity.MetricReplayDetected, Name: "identity_replay_detected_total", Help: "Detected authenticator replay attempts."},
	{ID: identity.MetricUserDeleted, Name: "identity_user_deleted_total", Help: "Deleted user accounts."},
	{ID: identity.MetricRateLimitHit, Name: "identity_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is an exported constant or variable used by the identity engine.
var HistogramDefs = []HistogramDef{
	{ID: identity.MetricAuthenticateLatency, Name: "identity_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the identity engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the identity engine.
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

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
