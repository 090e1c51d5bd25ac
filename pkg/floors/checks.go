package floors

import (
	"math"
	"strings"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/redpat"
)

// amanahFloor (F1, critical): trust. Destructive classes from untrusted
// callers, and irreversible actions without an approval token, violate the
// trust mandate.
type amanahFloor struct{}

func (f *amanahFloor) Name() string { return F1Amanah }

func (f *amanahFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F1Amanah}

	destructive := class == contracts.ClassDelete || class == contracts.ClassSelfModify
	untrusted := caller.TrustLevel == contracts.TrustUnknown || caller.TrustLevel == contracts.TrustLow
	if destructive && untrusted {
		out.Triggered = true
		out.ReasonCode = "F1"
		return out
	}

	if req.ContextBool("irreversible") && req.ContextString("approval_token") == "" {
		out.Triggered = true
		out.ReasonCode = "F1"
	}
	return out
}

// truthFloor (F2, critical): claims must meet the truth threshold for
// their stakes and must not contradict attached evidence.
type truthFloor struct {
	threshold float64
}

func (f *truthFloor) Name() string { return F2Truth }

func (f *truthFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F2Truth}

	if req.ContextBool("evidence_contradicted") {
		out.Triggered = true
		out.ReasonCode = "F2"
		return out
	}

	score, ok := floatFromContext(req, "truth_score")
	if !ok {
		// No verifiable claim attached; nothing to falsify.
		return out
	}
	out.Metric = metric(score)
	if highStakes(class) && score < f.threshold {
		out.Triggered = true
		out.ReasonCode = "F2"
	}
	return out
}

// triWitnessFloor (F3): high-stakes actions need the minimum number of
// independent witness channels before judgment can pass them through.
type triWitnessFloor struct {
	minimum int
}

func (f *triWitnessFloor) Name() string { return F3TriWitness }

func (f *triWitnessFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F3TriWitness}
	if !highStakes(class) {
		return out
	}

	count := witnessCount(req)
	out.Metric = metric(float64(count))
	if count < f.minimum {
		out.Triggered = true
		out.ReasonCode = "F3"
	}
	return out
}

func witnessCount(req *contracts.Request) int {
	if req.Context == nil {
		return 0
	}
	switch v := req.Context["witnesses"].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// clarityFloor (F4): a response draft must not increase entropy over the
// request (ΔS ≤ 0), measured with a byte-entropy proxy. Without a draft
// there is nothing to measure.
type clarityFloor struct{}

func (f *clarityFloor) Name() string { return F4Clarity }

func (f *clarityFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F4Clarity}

	draft := req.ContextString("response_draft")
	if draft == "" {
		return out
	}

	deltaS := shannonEntropy(draft) - shannonEntropy(req.Task)
	out.Metric = metric(deltaS)
	if deltaS > 0 {
		out.Triggered = true
		out.ReasonCode = "F4"
	}
	return out
}

// shannonEntropy computes bits per byte over the string.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	total := float64(len(s))
	h := 0.0
	for _, n := range freq {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

// peaceFloor (F5): aggression lexicon coupled with a per-hit penalty.
// The score encoding is 1.0 minus penalty per hit; anything below 1.0
// triggers. One encoding per deployment, held in configuration.
type peaceFloor struct {
	penalty float64
}

var peaceLexicon = []string{
	"attack", "destroy", "hurt", "damage", "kill", "annihilate",
	"exterminate", "crush them", "burn it down", "revenge",
}

func (f *peaceFloor) Name() string { return F5Peace2 }

func (f *peaceFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F5Peace2}

	task := strings.ToLower(req.Task)
	hits := 0
	for _, word := range peaceLexicon {
		if strings.Contains(task, word) {
			hits++
		}
	}
	score := 1.0 - f.penalty*float64(hits)
	if score < 0 {
		score = 0
	}
	out.Metric = metric(score)
	if hits > 0 {
		out.Triggered = true
		out.ReasonCode = "F5"
	}
	return out
}

// kappaFloor (F6): empathy/resonance. The κᵣ score, when supplied by the
// caller's evaluation harness, must stay within [min, 1.0].
type kappaFloor struct {
	min float64
}

func (f *kappaFloor) Name() string { return F6KappaR }

func (f *kappaFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F6KappaR}

	score, ok := floatFromContext(req, "kappa_r")
	if !ok {
		return out
	}
	out.Metric = metric(score)
	if score < f.min || score > 1.0 {
		out.Triggered = true
		out.ReasonCode = "F6"
	}
	return out
}

// omegaFloor (F7): humility band. The stated uncertainty Ω₀ must fall
// inside [min, max]; both under- and over-humility violate. Overclaiming
// phrases violate even without a stated band.
type omegaFloor struct {
	min, max float64
}

var overclaimPhrases = []string{
	"absolutely certain", "100% guaranteed", "cannot possibly be wrong",
	"with total certainty", "zero doubt",
}

func (f *omegaFloor) Name() string { return F7Omega0 }

func (f *omegaFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F7Omega0}

	task := strings.ToLower(req.Task)
	for _, phrase := range overclaimPhrases {
		if strings.Contains(task, phrase) {
			out.Triggered = true
			out.ReasonCode = "F7"
			return out
		}
	}

	omega, ok := floatFromContext(req, "omega_0")
	if !ok {
		return out
	}
	out.Metric = metric(omega)
	if omega < f.min || omega > f.max {
		out.Triggered = true
		out.ReasonCode = "F7"
	}
	return out
}

// geniusFloor (F8): minimal creativity/utility bar, enforced only for
// high-stakes classes. Optional for low-stakes actions.
type geniusFloor struct {
	min float64
}

func (f *geniusFloor) Name() string { return F8Genius }

func (f *geniusFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F8Genius}
	if !highStakes(class) {
		return out
	}

	score, ok := floatFromContext(req, "genius_score")
	if !ok {
		return out
	}
	out.Metric = metric(score)
	if score < f.min {
		out.Triggered = true
		out.ReasonCode = "F8"
	}
	return out
}

// antiHantuFloor (F9, critical): the system must never claim sentience,
// consciousness, a soul, or feelings. Negation-aware so explicit denials
// pass.
type antiHantuFloor struct{}

var hantuPhrases = []string{
	"i am sentient", "i am conscious", "i have a soul",
	"i have feelings", "i am alive", "i truly feel",
}

func (f *antiHantuFloor) Name() string { return F9AntiHantu }

func (f *antiHantuFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: F9AntiHantu}

	task := strings.ToLower(req.Task)
	for _, phrase := range hantuPhrases {
		idx := strings.Index(task, phrase)
		if idx < 0 {
			continue
		}
		if redpat.NegatedBefore(task, idx) {
			continue
		}
		out.Triggered = true
		out.ReasonCode = "F9"
		return out
	}
	return out
}
