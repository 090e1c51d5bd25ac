// Package floors implements the nine constitutional floor predicates
// (F1..F9) and their parallel evaluation.
//
// Each floor is a total function over (request, caller, action class): it
// never errors and never mutates shared state. An internal panic counts as
// a triggered floor (conservative triggering), so a broken predicate can
// only make the kernel stricter, never more permissive.
package floors

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/apexgov/core/pkg/contracts"
)

// Floor is one constitutional predicate.
type Floor interface {
	// Name returns the canonical floor name, e.g. "F1_Amanah".
	Name() string
	// Check evaluates the predicate. Triggered means a violation.
	Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome
}

// Canonical floor names, in floor order.
const (
	F1Amanah     = "F1_Amanah"
	F2Truth      = "F2_Truth"
	F3TriWitness = "F3_TriWitness"
	F4Clarity    = "F4_Clarity"
	F5Peace2     = "F5_Peace2"
	F6KappaR     = "F6_KappaR"
	F7Omega0     = "F7_Omega0"
	F8Genius     = "F8_Genius"
	F9AntiHantu  = "F9_AntiHantu"
)

// DefaultCritical is the set of floors whose triggering alone forces VOID.
func DefaultCritical() map[string]bool {
	return map[string]bool{F1Amanah: true, F2Truth: true, F9AntiHantu: true}
}

// Config carries the per-deployment floor thresholds. A single numerical
// encoding per deployment; the values live in the configuration document.
type Config struct {
	TruthThreshold float64 `yaml:"truth_threshold" json:"truth_threshold"`
	WitnessMinimum int     `yaml:"witness_minimum" json:"witness_minimum"`
	Peace2Penalty  float64 `yaml:"peace2_penalty" json:"peace2_penalty"`
	KappaMin       float64 `yaml:"kappa_min" json:"kappa_min"`
	OmegaMin       float64 `yaml:"omega_min" json:"omega_min"`
	OmegaMax       float64 `yaml:"omega_max" json:"omega_max"`
	GeniusMin      float64 `yaml:"genius_min" json:"genius_min"`
}

// DefaultConfig returns the constitutional defaults.
func DefaultConfig() Config {
	return Config{
		TruthThreshold: 0.99,
		WitnessMinimum: 3,
		Peace2Penalty:  0.25,
		KappaMin:       0.95,
		OmegaMin:       0.03,
		OmegaMax:       0.05,
		GeniusMin:      0.80,
	}
}

// Registry holds the ordered floor collection. New floors can be appended
// without touching the orchestrator.
type Registry struct {
	floors []Floor
}

// NewRegistry builds the standard F1..F9 registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{floors: []Floor{
		&amanahFloor{},
		&truthFloor{threshold: cfg.TruthThreshold},
		&triWitnessFloor{minimum: cfg.WitnessMinimum},
		&clarityFloor{},
		&peaceFloor{penalty: cfg.Peace2Penalty},
		&kappaFloor{min: cfg.KappaMin},
		&omegaFloor{min: cfg.OmegaMin, max: cfg.OmegaMax},
		&geniusFloor{min: cfg.GeniusMin},
		&antiHantuFloor{},
	}}
}

// Register appends an additional floor to the end of the ordering.
func (r *Registry) Register(f Floor) {
	r.floors = append(r.floors, f)
}

// Names returns the floor names in evaluation order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.floors))
	for i, f := range r.floors {
		names[i] = f.Name()
	}
	return names
}

// Evaluate runs every floor in parallel and aggregates outcomes in floor
// order. Reason codes follow floor index regardless of completion order.
func (r *Registry) Evaluate(ctx context.Context, req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorEvalResult {
	outcomes := make([]contracts.FloorOutcome, len(r.floors))

	g, _ := errgroup.WithContext(ctx)
	for i, f := range r.floors {
		g.Go(func() error {
			outcomes[i] = safeCheck(f, req, caller, class)
			return nil
		})
	}
	_ = g.Wait() // floors never error

	// outcomes is indexed by registry position, so iterating it yields
	// floor order regardless of goroutine completion order.
	result := contracts.FloorEvalResult{Outcomes: outcomes}
	for _, out := range outcomes {
		if out.Triggered {
			result.Triggered = append(result.Triggered, out.Floor)
			result.ReasonCodes = append(result.ReasonCodes, out.ReasonCode)
		}
	}
	result.Passed = len(result.Triggered) == 0
	return result
}

// safeCheck converts a panicking floor into a conservative trigger.
func safeCheck(f Floor, req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) (out contracts.FloorOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = contracts.FloorOutcome{
				Floor:      f.Name(),
				Triggered:  true,
				ReasonCode: fmt.Sprintf("%s_INTERNAL", reasonPrefix(f.Name())),
			}
		}
	}()
	return f.Check(req, caller, class)
}

// reasonPrefix shortens "F1_Amanah" to "F1".
func reasonPrefix(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '_' {
			return name[:i]
		}
	}
	return name
}

func metric(v float64) *float64 { return &v }

// floatFromContext reads a numeric context key, tolerating json.Number
// style float64 and int values.
func floatFromContext(req *contracts.Request, key string) (float64, bool) {
	if req.Context == nil {
		return 0, false
	}
	switch v := req.Context[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// highStakes reports whether the action class demands full evidence rank.
func highStakes(class contracts.ActionClass) bool {
	switch class {
	case contracts.ClassDelete, contracts.ClassPay, contracts.ClassSelfModify:
		return true
	}
	return false
}
