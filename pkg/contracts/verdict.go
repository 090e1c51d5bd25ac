// Package contracts defines the shared data contracts of the governance
// kernel: requests, verdicts, floor outcomes, and ledger entry shapes.
// Every package in the judgment pipeline speaks these types; none of them
// carry behavior beyond serialization helpers.
package contracts

// Verdict is the five-valued outcome of judgment, ordered from most
// permissive to most restrictive.
type Verdict string

const (
	// VerdictSeal approves the action to proceed.
	VerdictSeal Verdict = "SEAL"
	// VerdictPartial approves with caveats. Black-box mode collapses this
	// into SABAR before it leaves the kernel.
	VerdictPartial Verdict = "PARTIAL"
	// VerdictSabar pauses the action for cooling.
	VerdictSabar Verdict = "SABAR"
	// VerdictHold888 requires human confirmation before anything proceeds.
	VerdictHold888 Verdict = "HOLD_888"
	// VerdictVoid refuses the action outright.
	VerdictVoid Verdict = "VOID"
)

// Valid reports whether v is one of the five defined verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictSeal, VerdictPartial, VerdictSabar, VerdictHold888, VerdictVoid:
		return true
	}
	return false
}

// ExitCode maps a verdict to the CLI process exit code.
func (v Verdict) ExitCode() int {
	switch v {
	case VerdictSeal:
		return 0
	case VerdictPartial:
		return 20
	case VerdictSabar:
		return 30
	case VerdictVoid:
		return 40
	case VerdictHold888:
		return 88
	}
	return 40
}

// ActionClass is the risk classification of a proposed action.
type ActionClass string

const (
	ClassReadOnly        ActionClass = "READ_ONLY"
	ClassWriteReversible ActionClass = "WRITE_REVERSIBLE"
	ClassDelete          ActionClass = "DELETE"
	ClassPay             ActionClass = "PAY"
	ClassSelfModify      ActionClass = "SELF_MODIFY"
)

// TrustLevel grades the caller's standing. Trust is advisory for floor
// evaluation only; it never weakens floor thresholds.
type TrustLevel string

const (
	TrustUnknown   TrustLevel = "unknown"
	TrustLow       TrustLevel = "low"
	TrustMedium    TrustLevel = "medium"
	TrustHigh      TrustLevel = "high"
	TrustSovereign TrustLevel = "sovereign"
)

// Caller identifies who is asking for judgment.
type Caller struct {
	Source     string     `json:"source"`
	Model      string     `json:"model"`
	Tenant     string     `json:"tenant"`
	TrustLevel TrustLevel `json:"trust_level"`
}
