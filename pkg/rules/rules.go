// Package rules compiles per-deployment constitutional deny rules written
// in CEL and exposes them as an additional floor. Rules let a deployment
// tighten the constitution without a rebuild; they can only add triggers,
// never relax the built-in floors.
package rules

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/apexgov/core/pkg/contracts"
)

// ErrRuleCompile indicates a deny rule failed CEL compilation.
var ErrRuleCompile = errors.New("rules: compile failure")

// FloorName is the registry name of the custom-rules floor.
const FloorName = "F10_CustomRules"

// Rule is one configured deny rule. Expr is a CEL boolean expression over:
//
//	task         string
//	action_class string
//	trust_level  string
//	params       map[string, dyn]
//	context      map[string, dyn]
//
// A rule that evaluates to true triggers the custom floor with its code.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
	Code string `yaml:"code" json:"code"`
}

type compiledRule struct {
	name    string
	code    string
	program cel.Program
}

// Engine evaluates a compiled rule set. Read-only after Compile.
type Engine struct {
	rules []compiledRule
}

// Compile builds the CEL environment and compiles every rule. All rules
// must compile; a single bad expression fails the whole set so a typo
// cannot silently disable a deny rule.
func Compile(rules []Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("task", cel.StringType),
		cel.Variable("action_class", cel.StringType),
		cel.Variable("trust_level", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrRuleCompile, err)
	}

	e := &Engine{}
	for _, r := range rules {
		if r.Expr == "" || r.Name == "" {
			return nil, fmt.Errorf("%w: rule %q missing name or expr", ErrRuleCompile, r.Name)
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRuleCompile, r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("%w: %s: expression must be boolean", ErrRuleCompile, r.Name)
		}
		prog, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRuleCompile, r.Name, err)
		}
		code := r.Code
		if code == "" {
			code = "RULE::" + r.Name
		}
		e.rules = append(e.rules, compiledRule{name: r.Name, code: code, program: prog})
	}
	return e, nil
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int { return len(e.rules) }

// Matches evaluates all rules and returns the codes of those that fired.
// An evaluation error counts as a match (conservative triggering).
func (e *Engine) Matches(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) []string {
	if len(e.rules) == 0 {
		return nil
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	context := req.Context
	if context == nil {
		context = map[string]any{}
	}
	input := map[string]any{
		"task":         req.Task,
		"action_class": string(class),
		"trust_level":  string(caller.TrustLevel),
		"params":       params,
		"context":      context,
	}

	var codes []string
	for _, r := range e.rules {
		val, _, err := r.program.Eval(input)
		if err != nil {
			codes = append(codes, r.code)
			continue
		}
		if matched, ok := val.Value().(bool); ok && matched {
			codes = append(codes, r.code)
		}
	}
	return codes
}

// AsFloor adapts the engine to the floor interface so the orchestrator
// treats configured rules like any other non-critical floor.
func (e *Engine) AsFloor() *ruleFloor { return &ruleFloor{engine: e} }

type ruleFloor struct {
	engine *Engine
}

func (f *ruleFloor) Name() string { return FloorName }

func (f *ruleFloor) Check(req *contracts.Request, caller contracts.Caller, class contracts.ActionClass) contracts.FloorOutcome {
	out := contracts.FloorOutcome{Floor: FloorName}
	codes := f.engine.Matches(req, caller, class)
	if len(codes) > 0 {
		out.Triggered = true
		out.ReasonCode = codes[0]
	}
	return out
}
