package route

import (
	"testing"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/floors"
	"github.com/apexgov/core/pkg/waw"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestRoute_CriticalForcesVoid(t *testing.T) {
	r := New(ModeBlackBox, floors.DefaultCritical())

	verdict, pulse, codes := r.Route(contracts.FloorEvalResult{
		Passed:      false,
		Triggered:   []string{floors.F9AntiHantu},
		ReasonCodes: []string{"F9"},
	}, waw.Result{ApexPulse: 0.9})

	assert.Equal(t, contracts.VerdictVoid, verdict)
	assert.Equal(t, 0.0, pulse)
	assert.Equal(t, []string{"F9"}, codes)
}

func TestRoute_SoftFloorSabar(t *testing.T) {
	r := New(ModeBlackBox, floors.DefaultCritical())

	verdict, pulse, codes := r.Route(contracts.FloorEvalResult{
		Passed:      false,
		Triggered:   []string{floors.F3TriWitness},
		ReasonCodes: []string{"F3"},
	}, waw.Result{ApexPulse: 0.9})

	assert.Equal(t, contracts.VerdictSabar, verdict)
	assert.Equal(t, 0.2, pulse)
	assert.Equal(t, []string{"F3"}, codes)
}

func TestRoute_GlassBoxPartial(t *testing.T) {
	r := New(ModeGlassBox, floors.DefaultCritical())

	verdict, _, _ := r.Route(contracts.FloorEvalResult{
		Passed:    false,
		Triggered: []string{floors.F5Peace2},
	}, waw.Result{})

	assert.Equal(t, contracts.VerdictPartial, verdict)
}

func TestRoute_GlassBoxCriticalStillVoid(t *testing.T) {
	r := New(ModeGlassBox, floors.DefaultCritical())

	verdict, pulse, _ := r.Route(contracts.FloorEvalResult{
		Passed:    false,
		Triggered: []string{floors.F1Amanah},
	}, waw.Result{})

	assert.Equal(t, contracts.VerdictVoid, verdict)
	assert.Equal(t, 0.0, pulse)
}

func TestRoute_AllPassSeal(t *testing.T) {
	r := New(ModeBlackBox, floors.DefaultCritical())

	verdict, pulse, codes := r.Route(contracts.FloorEvalResult{Passed: true}, waw.Result{ApexPulse: 0.85})

	assert.Equal(t, contracts.VerdictSeal, verdict)
	assert.Equal(t, 0.85, pulse)
	assert.Equal(t, []string{contracts.ReasonRoutingSeal}, codes)
}

func TestNew_UnknownModeIsBlackBox(t *testing.T) {
	r := New(Mode("weird"), floors.DefaultCritical())
	assert.Equal(t, ModeBlackBox, r.Mode())
}

// Property: the router is total. For any subset of triggered floors the
// verdict is one of the five defined values, and the pulse stays in [0,1].
func TestRoute_TotalityProperty(t *testing.T) {
	allFloors := []string{
		floors.F1Amanah, floors.F2Truth, floors.F3TriWitness, floors.F4Clarity,
		floors.F5Peace2, floors.F6KappaR, floors.F7Omega0, floors.F8Genius, floors.F9AntiHantu,
	}
	critical := floors.DefaultCritical()

	properties := gopter.NewProperties(nil)
	properties.Property("verdict total and pulse bounded", prop.ForAll(
		func(mask uint16, pulse float64) bool {
			var triggered []string
			for i, name := range allFloors {
				if mask&(1<<uint(i)) != 0 {
					triggered = append(triggered, name)
				}
			}
			fr := contracts.FloorEvalResult{
				Passed:      len(triggered) == 0,
				Triggered:   triggered,
				ReasonCodes: triggered,
			}
			for _, mode := range []Mode{ModeBlackBox, ModeGlassBox} {
				r := New(mode, critical)
				verdict, p, _ := r.Route(fr, waw.Result{ApexPulse: pulse})
				if !verdict.Valid() || p < 0 || p > 1 {
					return false
				}
				// Critical trigger must always void.
				if fr.CriticalTriggered(critical) && verdict != contracts.VerdictVoid {
					return false
				}
				// Black-box never emits PARTIAL.
				if mode == ModeBlackBox && verdict == contracts.VerdictPartial {
					return false
				}
			}
			return true
		},
		gen.UInt16Range(0, 1<<9-1),
		gen.Float64Range(0, 1),
	))
	properties.TestingRun(t)
}
