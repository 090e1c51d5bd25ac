package explain

import (
	"strings"
	"testing"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/floors"
	"github.com/stretchr/testify/assert"
)

func TestBuild_Seal(t *testing.T) {
	got := Build(contracts.VerdictSeal, []string{contracts.ReasonRoutingSeal}, nil, []string{contracts.ConstraintNoSelfModify}, nil)

	assert.True(t, strings.HasPrefix(got, "Approved."))
	assert.Contains(t, got, "all constitutional checks passed")
	assert.Contains(t, got, contracts.ConstraintNoSelfModify)
}

func TestBuild_VoidWithHint(t *testing.T) {
	got := Build(contracts.VerdictVoid, []string{"F9"}, []string{"antihantu_review"}, []string{contracts.ConstraintNoExecution}, []string{floors.F9AntiHantu})

	assert.Contains(t, got, "Refused.")
	assert.Contains(t, got, "anthropomorphic claim detected")
	assert.Contains(t, got, "antihantu_review")
	assert.Contains(t, got, "Remove claims of sentience or feeling.")
}

func TestBuild_CapsReasonsAtThree(t *testing.T) {
	got := Build(contracts.VerdictSabar, []string{"F3", "F4", "F5", "F6", "F7"}, nil, nil, nil)

	assert.Contains(t, got, "insufficient independent witnesses")
	assert.Contains(t, got, "response would add confusion")
	assert.Contains(t, got, "non-peaceful framing detected")
	assert.NotContains(t, got, "tone inadequate")
	assert.NotContains(t, got, "certainty overclaimed")
}

func TestBuild_RedPatternCodes(t *testing.T) {
	got := Build(contracts.VerdictVoid, []string{"RED::rm_rf"}, nil, nil, nil)
	assert.Contains(t, got, "destructive pattern (rm_rf)")
}

func TestBuild_Deterministic(t *testing.T) {
	args := []string{"F2", "F3"}
	first := Build(contracts.VerdictSabar, args, []string{"verified_source"}, []string{"no_execution"}, []string{floors.F2Truth})
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Build(contracts.VerdictSabar, args, []string{"verified_source"}, []string{"no_execution"}, []string{floors.F2Truth}))
	}
}

func TestBuild_DoesNotEchoTaskText(t *testing.T) {
	// The builder never receives the task, so user PII cannot leak; this
	// guards the signature against regressions that would add it.
	got := Build(contracts.VerdictVoid, []string{"F1"}, nil, nil, []string{floors.F1Amanah})
	assert.NotContains(t, got, "ssn")
}
