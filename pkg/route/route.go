// Package route implements the deterministic 000→999 routing rule that
// maps floor outcomes and W@W weights onto a verdict. The router is pure
// and stateless; its mode is fixed at construction, never per request.
package route

import (
	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/waw"
)

// Mode selects the external verdict vocabulary.
type Mode string

const (
	// ModeBlackBox collapses PARTIAL into SABAR before the verdict leaves
	// the kernel.
	ModeBlackBox Mode = "black_box"
	// ModeGlassBox exposes PARTIAL for non-critical triggers.
	ModeGlassBox Mode = "glass_box"
)

// sabarPulse is the fixed pulse for paused verdicts.
const sabarPulse = 0.2

// Router maps floor results to verdicts.
type Router struct {
	mode     Mode
	critical map[string]bool
}

// New builds a Router. An unrecognized mode falls back to black-box, the
// stricter vocabulary.
func New(mode Mode, critical map[string]bool) *Router {
	if mode != ModeGlassBox {
		mode = ModeBlackBox
	}
	return &Router{mode: mode, critical: critical}
}

// Mode returns the configured mode.
func (r *Router) Mode() Mode { return r.mode }

// Route applies the routing rule:
//
//  1. Any critical floor triggered → VOID, pulse 0.
//  2. Any non-critical floor triggered → SABAR (PARTIAL in glass-box),
//     pulse fixed at 0.2.
//  3. Otherwise → SEAL with the W@W apex pulse.
//
// Reason codes are the triggered floor codes; a SEAL appends ROUTING_SEAL.
func (r *Router) Route(floorResult contracts.FloorEvalResult, weights waw.Result) (contracts.Verdict, float64, []string) {
	if !floorResult.Passed {
		if floorResult.CriticalTriggered(r.critical) {
			return contracts.VerdictVoid, 0.0, append([]string(nil), floorResult.ReasonCodes...)
		}
		verdict := contracts.VerdictSabar
		if r.mode == ModeGlassBox {
			verdict = contracts.VerdictPartial
		}
		return verdict, sabarPulse, append([]string(nil), floorResult.ReasonCodes...)
	}

	codes := append(append([]string(nil), floorResult.ReasonCodes...), contracts.ReasonRoutingSeal)
	return contracts.VerdictSeal, weights.ApexPulse, codes
}
