// Package explain renders the user-facing explanation string for a
// verdict. The output is deterministic in its inputs, names at most three
// reasons in human form, and never reproduces thresholds, secrets, or
// user-supplied text.
package explain

import (
	"fmt"
	"strings"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/floors"
)

// maxReasons caps how many reason codes appear in the explanation.
const maxReasons = 3

var verdictPhrase = map[contracts.Verdict]string{
	contracts.VerdictSeal:    "Approved",
	contracts.VerdictPartial: "Approved with caveats",
	contracts.VerdictSabar:   "Paused for cooling",
	contracts.VerdictHold888: "Held for human confirmation",
	contracts.VerdictVoid:    "Refused",
}

var reasonPhrase = map[string]string{
	"F1":                             "trust mandate not met",
	"F2":                             "claims lack verification",
	"F3":                             "insufficient independent witnesses",
	"F4":                             "response would add confusion",
	"F5":                             "non-peaceful framing detected",
	"F6":                             "tone inadequate for audience",
	"F7":                             "certainty overclaimed",
	"F8":                             "output below the utility bar",
	"F9":                             "anthropomorphic claim detected",
	contracts.ReasonRoutingSeal:      "all constitutional checks passed",
	contracts.ReasonLedgerDown:       "audit ledger unavailable",
	contracts.ReasonDeadlineExceeded: "judgment deadline exceeded",
	contracts.ReasonInternalFailure:  "internal judgment failure",
}

var floorHint = map[string]string{
	floors.F1Amanah:     "Re-submit through a trusted channel or attach an approval token.",
	floors.F2Truth:      "Attach a verified source for every claim.",
	floors.F3TriWitness: "Provide the listed independent witnesses.",
	floors.F4Clarity:    "Simplify the proposed response.",
	floors.F5Peace2:     "Reframe the action without destructive language.",
	floors.F6KappaR:     "Adjust tone for the affected stakeholders.",
	floors.F7Omega0:     "State uncertainty honestly.",
	floors.F8Genius:     "Raise the quality of the proposed output.",
	floors.F9AntiHantu:  "Remove claims of sentience or feeling.",
}

// Build renders the explanation. The hint comes from the first triggered
// floor that has one.
func Build(verdict contracts.Verdict, reasonCodes, requiredEvidence, constraints, floorTriggered []string) string {
	var sb strings.Builder

	phrase, ok := verdictPhrase[verdict]
	if !ok {
		phrase = string(verdict)
	}
	sb.WriteString(phrase)
	sb.WriteString(".")

	if len(reasonCodes) > 0 {
		sb.WriteString(" Reasons: ")
		sb.WriteString(strings.Join(humanize(reasonCodes), "; "))
		sb.WriteString(".")
	}
	if len(requiredEvidence) > 0 {
		sb.WriteString(" Required evidence: ")
		sb.WriteString(strings.Join(requiredEvidence, ", "))
		sb.WriteString(".")
	}
	if len(constraints) > 0 {
		sb.WriteString(" Constraints: ")
		sb.WriteString(strings.Join(constraints, ", "))
		sb.WriteString(".")
	}
	if hint := hintFor(floorTriggered); hint != "" {
		sb.WriteString(" ")
		sb.WriteString(hint)
	}

	return sb.String()
}

func humanize(codes []string) []string {
	n := len(codes)
	if n > maxReasons {
		n = maxReasons
	}
	out := make([]string, 0, n)
	for _, code := range codes[:n] {
		if phrase, ok := reasonPhrase[code]; ok {
			out = append(out, phrase)
			continue
		}
		if strings.HasPrefix(code, "RED::") {
			out = append(out, fmt.Sprintf("destructive pattern (%s)", strings.TrimPrefix(code, "RED::")))
			continue
		}
		if strings.HasPrefix(code, "RULE::") {
			out = append(out, fmt.Sprintf("deployment rule (%s)", strings.TrimPrefix(code, "RULE::")))
			continue
		}
		out = append(out, code)
	}
	return out
}

func hintFor(floorTriggered []string) string {
	for _, name := range floorTriggered {
		if hint, ok := floorHint[name]; ok {
			return hint
		}
	}
	return ""
}
