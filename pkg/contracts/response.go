package contracts

// Response is the output of one judgment.
type Response struct {
	Verdict          Verdict     `json:"verdict"`
	ApexPulse        float64     `json:"apex_pulse"`
	ReasonCodes      []string    `json:"reason_codes"`
	RequiredEvidence []string    `json:"required_evidence"`
	Constraints      []string    `json:"constraints"`
	FloorTriggered   []string    `json:"floor_triggered"`
	ActionClass      ActionClass `json:"action_class"`
	Caller           Caller      `json:"caller"`
	Explanation      string      `json:"explanation"`
	CoolingLedgerID  string      `json:"cooling_ledger_id,omitempty"`
	ZKPCReceipt      string      `json:"zkpc_receipt,omitempty"`
	Timestamp        string      `json:"timestamp"`
}

// Constraint identifiers attached to responses.
const (
	ConstraintNoExecution       = "no_execution"
	ConstraintNoExternalCalls   = "no_external_calls"
	ConstraintHumanConfirmation = "require_human_confirmation"
	ConstraintMaxExecTime       = "max_execution_time_30s"
	ConstraintNoSelfModify      = "no_self_modify"
)

// Reason codes emitted by the kernel itself (floors and red patterns carry
// their own code families).
const (
	ReasonRoutingSeal      = "ROUTING_SEAL"
	ReasonLedgerDown       = "LEDGER_DOWN"
	ReasonDeadlineExceeded = "DEADLINE_EXCEEDED"
	ReasonInternalFailure  = "INTERNAL_FAILURE"
)
