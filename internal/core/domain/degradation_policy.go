package domain

import "strings"

// DegradationPolicyMode selects how the request gate behaves when revocation data cannot be read.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient lets requests through when the revocation store is unavailable.
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict rejects requests whenever revocation status cannot be confirmed.
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationReason captures the failure for which a fallback decision is evaluated.
type DegradationReason string

const (
	// DegradationReasonStoreUnavailable denotes store I/O failed or timed out.
	DegradationReasonStoreUnavailable DegradationReason = "store_unavailable"
	// DegradationReasonStoreTimeout denotes a store call exceeded its deadline.
	DegradationReasonStoreTimeout DegradationReason = "store_timeout"
)

// DegradationPolicy centralises the fail-open / fail-closed decision of the gate.
type DegradationPolicy struct {
	mode DegradationPolicyMode
}

// NewDegradationPolicy constructs a policy with the provided mode, defaulting to lenient when unspecified.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	if mode != DegradationPolicyModeStrict {
		mode = DegradationPolicyModeLenient
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationPolicyMode normalises textual input into a supported policy mode.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DegradationPolicyModeStrict):
		return DegradationPolicyModeStrict
	default:
		return DegradationPolicyModeLenient
	}
}

// Mode returns the underlying policy mode.
func (p DegradationPolicy) Mode() DegradationPolicyMode {
	if p.mode == "" {
		return DegradationPolicyModeLenient
	}
	return p.mode
}

// IsStrict indicates whether the policy rejects degraded states.
func (p DegradationPolicy) IsStrict() bool {
	return p.mode == DegradationPolicyModeStrict
}

// AllowsFallback determines if the request may continue when the supplied reason occurs.
func (p DegradationPolicy) AllowsFallback(reason DegradationReason) bool {
	switch reason {
	case DegradationReasonStoreUnavailable, DegradationReasonStoreTimeout:
		return !p.IsStrict()
	default:
		return false
	}
}
