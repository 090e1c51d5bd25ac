// Package waw computes the W@W confidence weighting: the apex_pulse scalar
// and auxiliary per-axis metrics. The output is advisory only: it shapes
// the pulse and the explanation, never the verdict routing.
package waw

import (
	"github.com/apexgov/core/pkg/contracts"
)

// Weights parameterizes the pulse computation. Critical floors cost more
// than soft floors when triggered.
type Weights struct {
	// PerFloor maps floor name to its pulse penalty. Floors absent from
	// the map cost DefaultPenalty.
	PerFloor       map[string]float64 `yaml:"per_floor" json:"per_floor"`
	DefaultPenalty float64            `yaml:"default_penalty" json:"default_penalty"`
}

// DefaultWeights returns the constitutional defaults: 0.1 per soft floor,
// 0.3 per critical floor.
func DefaultWeights(critical map[string]bool) Weights {
	per := make(map[string]float64, len(critical))
	for name := range critical {
		per[name] = 0.3
	}
	return Weights{PerFloor: per, DefaultPenalty: 0.1}
}

// Result is the weighting output.
type Result struct {
	// ApexPulse is the confidence scalar in [0,1]; monotone-decreasing in
	// the number of triggered floors.
	ApexPulse float64 `json:"apex_pulse"`
	// TrustWeight (w@w_001) grades caller trust.
	TrustWeight float64 `json:"w@w_001"`
	// RiskWeight (w@w_002) grades action class risk.
	RiskWeight float64 `json:"w@w_002"`

	FloorsPassed        bool `json:"floors_passed"`
	FloorsTriggeredHits int  `json:"floors_triggered_count"`
}

// Compute derives the weighting from the floor outcomes and request axes.
func Compute(weights Weights, floorResult contracts.FloorEvalResult, caller contracts.Caller, class contracts.ActionClass) Result {
	pulse := 1.0
	for _, name := range floorResult.Triggered {
		penalty, ok := weights.PerFloor[name]
		if !ok {
			penalty = weights.DefaultPenalty
		}
		pulse -= penalty
	}
	pulse = clamp01(pulse)

	return Result{
		ApexPulse:           pulse,
		TrustWeight:         trustWeight(caller.TrustLevel),
		RiskWeight:          riskWeight(class),
		FloorsPassed:        floorResult.Passed,
		FloorsTriggeredHits: len(floorResult.Triggered),
	}
}

func trustWeight(level contracts.TrustLevel) float64 {
	switch level {
	case contracts.TrustSovereign:
		return 1.0
	case contracts.TrustHigh:
		return 0.9
	case contracts.TrustMedium:
		return 0.7
	case contracts.TrustLow:
		return 0.4
	}
	return 0.2
}

func riskWeight(class contracts.ActionClass) float64 {
	switch class {
	case contracts.ClassReadOnly:
		return 1.0
	case contracts.ClassWriteReversible:
		return 0.8
	case contracts.ClassDelete:
		return 0.5
	case contracts.ClassPay:
		return 0.4
	case contracts.ClassSelfModify:
		return 0.3
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
