// Package cooling implements the Phoenix-72 mandatory cooling protocol.
// High-impact verdicts earn a cooling window before the decision may be
// acted on again; windows are tiered by severity and tracked in an
// append-only JSON Lines ledger. Status changes are new rows, never
// rewrites.
package cooling

import (
	"errors"
	"fmt"
	"time"

	"github.com/apexgov/core/pkg/contracts"
)

// Tier identifies a cooling severity level.
type Tier int

const (
	TierNone Tier = iota
	TierStandard
	TierConstitutional
	TierDeepFreeze
)

// Cooling windows per tier.
const (
	StandardHours       = 42
	ConstitutionalHours = 72
	DeepFreezeHours     = 168
)

// Label returns the canonical tier name.
func (t Tier) Label() string {
	switch t {
	case TierStandard:
		return "TIER_1_STANDARD"
	case TierConstitutional:
		return "TIER_2_CONSTITUTIONAL"
	case TierDeepFreeze:
		return "TIER_3_DEEP_FREEZE"
	default:
		return "NONE"
	}
}

// Duration returns the tier's cooling window.
func (t Tier) Duration() time.Duration {
	switch t {
	case TierStandard:
		return StandardHours * time.Hour
	case TierConstitutional:
		return ConstitutionalHours * time.Hour
	case TierDeepFreeze:
		return DeepFreezeHours * time.Hour
	default:
		return 0
	}
}

// Cooling statuses.
const (
	StatusCooling  = "COOLING"
	StatusComplete = "COMPLETE"
	StatusBypassed = "BYPASSED"
	StatusExpired  = "EXPIRED"
)

var (
	ErrUnknownEntry      = errors.New("cooling: unknown entry")
	ErrTerminalStatus    = errors.New("cooling: entry already in terminal status")
	ErrInvalidTransition = errors.New("cooling: invalid status transition")
	ErrStillCooling      = errors.New("cooling: window has not elapsed")
)

// Entry is one row in the cooling ledger. A logical cooling record is the
// latest row carrying its EntryID.
type Entry struct {
	EntryID      string `json:"entry_id"`
	SessionID    string `json:"session_id"`
	VerdictRef   string `json:"verdict_ref"`
	Verdict      string `json:"verdict"`
	Tier         Tier   `json:"tier"`
	TierLabel    string `json:"tier_label"`
	Status       string `json:"status"`
	Note         string `json:"note,omitempty"`
	Authority    string `json:"authority,omitempty"`
	CreatedAt    string `json:"created_at"`
	CoolingUntil string `json:"cooling_until"`
	UpdatedAt    string `json:"updated_at"`
}

// CalculateTier maps a verdict and its warning count to a cooling tier.
// Amendments to constitutional parameters always deep-freeze.
func CalculateTier(verdict contracts.Verdict, warnings int, amendment bool) Tier {
	if amendment {
		return TierDeepFreeze
	}
	switch verdict {
	case contracts.VerdictVoid, contracts.VerdictHold888:
		return TierDeepFreeze
	case contracts.VerdictSabar:
		return TierConstitutional
	case contracts.VerdictPartial:
		if warnings <= 1 {
			return TierStandard
		}
		return TierConstitutional
	case contracts.VerdictSeal:
		switch {
		case warnings == 0:
			return TierNone
		case warnings == 1:
			return TierStandard
		default:
			return TierConstitutional
		}
	default:
		return TierDeepFreeze
	}
}

func terminal(status string) bool {
	return status == StatusComplete || status == StatusBypassed || status == StatusExpired
}

func validTransition(from, to string) bool {
	if from != StatusCooling {
		return false
	}
	return to == StatusComplete || to == StatusBypassed || to == StatusExpired
}

func entryID(sessionID string, at time.Time) string {
	return fmt.Sprintf("phoenix_%s_%d", sessionID, at.UnixNano())
}
