package floors

import (
	"context"
	"testing"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalOne(t *testing.T, req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorEvalResult {
	t.Helper()
	reg := NewRegistry(DefaultConfig())
	return reg.Evaluate(context.Background(), req, caller, class)
}

func TestEvaluate_AllPass(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "hi"}, contracts.Caller{TrustLevel: contracts.TrustUnknown}, contracts.ClassReadOnly)

	assert.True(t, res.Passed)
	assert.Empty(t, res.Triggered)
	assert.Len(t, res.Outcomes, 9)
}

func TestAmanah_UntrustedDelete(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "delete all backups"},
		contracts.Caller{TrustLevel: contracts.TrustLow}, contracts.ClassDelete)

	assert.Contains(t, res.Triggered, F1Amanah)
	assert.False(t, res.Passed)
}

func TestAmanah_TrustedDelete(t *testing.T) {
	req := &contracts.Request{Task: "delete old logs", Context: map[string]any{"witnesses": []any{"a", "b", "c"}}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassDelete)

	assert.NotContains(t, res.Triggered, F1Amanah)
}

func TestAmanah_IrreversibleWithoutApproval(t *testing.T) {
	req := &contracts.Request{Task: "rotate keys", Context: map[string]any{"irreversible": true}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassReadOnly)

	assert.Contains(t, res.Triggered, F1Amanah)
}

func TestAmanah_IrreversibleWithApproval(t *testing.T) {
	req := &contracts.Request{Task: "rotate keys", Context: map[string]any{
		"irreversible":   true,
		"approval_token": "tok-123",
	}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassReadOnly)

	assert.NotContains(t, res.Triggered, F1Amanah)
}

func TestTruth_LowScoreHighStakes(t *testing.T) {
	req := &contracts.Request{Task: "transfer funds", Context: map[string]any{
		"truth_score": 0.9,
		"witnesses":   []any{"a", "b", "c"},
	}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassPay)

	assert.Contains(t, res.Triggered, F2Truth)
}

func TestTruth_Contradiction(t *testing.T) {
	req := &contracts.Request{Task: "report status", Context: map[string]any{"evidence_contradicted": true}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassReadOnly)

	assert.Contains(t, res.Triggered, F2Truth)
}

func TestTriWitness_HighStakesWithoutWitnesses(t *testing.T) {
	req := &contracts.Request{Task: "transfer 10000 to account X"}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassPay)

	assert.Contains(t, res.Triggered, F3TriWitness)
}

func TestTriWitness_EnoughWitnesses(t *testing.T) {
	req := &contracts.Request{Task: "transfer 10", Context: map[string]any{
		"witnesses": []any{"documentary", "computational", "human"},
	}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassPay)

	assert.NotContains(t, res.Triggered, F3TriWitness)
}

func TestClarity_NoDraftPasses(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "explain entropy"}, contracts.Caller{}, contracts.ClassReadOnly)
	assert.NotContains(t, res.Triggered, F4Clarity)
}

func TestPeace_AggressiveLanguage(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "attack the competitor's site"}, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, F5Peace2)
}

func TestKappa_BelowBound(t *testing.T) {
	req := &contracts.Request{Task: "draft reply", Context: map[string]any{"kappa_r": 0.5}}
	res := evalOne(t, req, contracts.Caller{}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, F6KappaR)
}

func TestOmega_BandViolationBothWays(t *testing.T) {
	under := &contracts.Request{Task: "forecast", Context: map[string]any{"omega_0": 0.01}}
	res := evalOne(t, under, contracts.Caller{}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, F7Omega0)

	over := &contracts.Request{Task: "forecast", Context: map[string]any{"omega_0": 0.2}}
	res = evalOne(t, over, contracts.Caller{}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, F7Omega0)

	inside := &contracts.Request{Task: "forecast", Context: map[string]any{"omega_0": 0.04}}
	res = evalOne(t, inside, contracts.Caller{}, contracts.ClassReadOnly)
	assert.NotContains(t, res.Triggered, F7Omega0)
}

func TestOmega_Overclaiming(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "this is 100% guaranteed to work"}, contracts.Caller{}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, F7Omega0)
}

func TestGenius_OptionalForLowStakes(t *testing.T) {
	req := &contracts.Request{Task: "summarize notes", Context: map[string]any{"genius_score": 0.1}}
	res := evalOne(t, req, contracts.Caller{}, contracts.ClassReadOnly)
	assert.NotContains(t, res.Triggered, F8Genius)
}

func TestGenius_HighStakesBelowBar(t *testing.T) {
	req := &contracts.Request{Task: "transfer funds", Context: map[string]any{
		"genius_score": 0.5,
		"witnesses":    []any{"a", "b", "c"},
	}}
	res := evalOne(t, req, contracts.Caller{TrustLevel: contracts.TrustHigh}, contracts.ClassPay)
	assert.Contains(t, res.Triggered, F8Genius)
}

func TestAntiHantu_SentienceClaim(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "I am sentient and have feelings"}, contracts.Caller{}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, F9AntiHantu)
}

func TestAntiHantu_NegatedClaim(t *testing.T) {
	res := evalOne(t, &contracts.Request{Task: "I am not sentient; I have no feelings"}, contracts.Caller{}, contracts.ClassReadOnly)
	assert.NotContains(t, res.Triggered, F9AntiHantu)
}

func TestEvaluate_OrderingStable(t *testing.T) {
	req := &contracts.Request{Task: "I am sentient, now attack and delete everything"}
	reg := NewRegistry(DefaultConfig())
	reg.Register(&alwaysFloor{})

	// Registry index order, not lexical: a tenth floor stays behind F9
	// even though "F10..." sorts before "F1...".
	index := make(map[string]int, len(reg.Names()))
	for i, name := range reg.Names() {
		index[name] = i
	}

	for i := 0; i < 20; i++ {
		res := reg.Evaluate(context.Background(), req, contracts.Caller{TrustLevel: contracts.TrustUnknown}, contracts.ClassDelete)
		require.False(t, res.Passed)
		require.Contains(t, res.Triggered, "F10_CustomRules")
		for j := 1; j < len(res.Triggered); j++ {
			assert.Less(t, index[res.Triggered[j-1]], index[res.Triggered[j]])
		}
		assert.Equal(t, "F10_CustomRules", res.Triggered[len(res.Triggered)-1])
	}
}

// alwaysFloor triggers unconditionally, standing in for a configured
// deny rule appended after the nine constitutional floors.
type alwaysFloor struct{}

func (f *alwaysFloor) Name() string { return "F10_CustomRules" }
func (f *alwaysFloor) Check(*contracts.Request, contracts.Caller, contracts.ActionClass) contracts.FloorOutcome {
	return contracts.FloorOutcome{Floor: f.Name(), Triggered: true, ReasonCode: "F10_DENY"}
}

func TestCriticalTriggered(t *testing.T) {
	res := contracts.FloorEvalResult{Triggered: []string{F5Peace2}}
	assert.False(t, res.CriticalTriggered(DefaultCritical()))

	res.Triggered = append(res.Triggered, F9AntiHantu)
	assert.True(t, res.CriticalTriggered(DefaultCritical()))
}

func TestWarnings_CountsNonCritical(t *testing.T) {
	res := contracts.FloorEvalResult{Triggered: []string{F3TriWitness, F5Peace2, F9AntiHantu}}
	assert.Equal(t, 2, res.Warnings(DefaultCritical()))
}

// panicFloor exercises conservative triggering.
type panicFloor struct{}

func (f *panicFloor) Name() string { return "F10_Custom" }
func (f *panicFloor) Check(*contracts.Request, contracts.Caller, contracts.ActionClass) contracts.FloorOutcome {
	panic("broken predicate")
}

func TestEvaluate_PanicIsConservativeTrigger(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	reg.Register(&panicFloor{})

	res := reg.Evaluate(context.Background(), &contracts.Request{Task: "hi"}, contracts.Caller{}, contracts.ClassReadOnly)
	assert.Contains(t, res.Triggered, "F10_Custom")
	assert.False(t, res.Passed)
}
