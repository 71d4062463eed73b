// Package guard holds the denial taxonomy shared by the session manager,
// security monitor, and policy engine. Denials are values carried on results,
// not Go errors: a rejected action is a normal outcome, not a failure of the
// subsystem.
package guard

// Reason is a machine-readable denial code. Every denial also carries a
// human-readable message alongside the code.
type Reason string

const (
	// ReasonNotFound means the referenced session or resource does not exist.
	ReasonNotFound Reason = "NOT_FOUND"
	// ReasonInactive means the session exists but is no longer active.
	ReasonInactive Reason = "INACTIVE"
	// ReasonExpired means the session or token is past its validity.
	ReasonExpired Reason = "EXPIRED"
	// ReasonRevoked means the grant was explicitly invalidated.
	ReasonRevoked Reason = "REVOKED"
	// ReasonDeviceMismatch means the presented device does not match the bound one.
	ReasonDeviceMismatch Reason = "DEVICE_MISMATCH"
	// ReasonBlocked means the identifier is on the block-list.
	ReasonBlocked Reason = "BLOCKED"
	// ReasonPolicyViolation means one or more required validation rules failed.
	ReasonPolicyViolation Reason = "POLICY_VIOLATION"
	// ReasonInternal means a detector or logger failed; primary decisions
	// never depend on it.
	ReasonInternal Reason = "INTERNAL"
)
