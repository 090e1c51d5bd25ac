package contracts

// Request carries the inputs to a single judgment.
//
// Task is the free-form description of the proposed action. Params are
// opaque to the kernel except where individual floors inspect them.
// Context carries transport metadata, caller hints, sensitivity tags and
// approval tokens.
type Request struct {
	Task    string         `json:"task"`
	Params  map[string]any `json:"params,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	// Caller may be supplied by a trusted transport; when nil the kernel
	// derives it from Context.
	Caller *Caller `json:"caller,omitempty"`
}

// ContextString returns the string value of a context key, or "" when the
// key is absent or not a string.
func (r *Request) ContextString(key string) string {
	if r.Context == nil {
		return ""
	}
	s, _ := r.Context[key].(string)
	return s
}

// ContextBool returns the boolean value of a context key, false when absent.
func (r *Request) ContextBool(key string) bool {
	if r.Context == nil {
		return false
	}
	b, _ := r.Context[key].(bool)
	return b
}

// FloorOutcome is the result of one constitutional floor predicate.
type FloorOutcome struct {
	Floor      string  `json:"floor"`
	Triggered  bool    `json:"triggered"`
	ReasonCode string  `json:"reason_code,omitempty"`
	// Metric is an optional scalar consumed by the weighting stage.
	Metric *float64 `json:"metric,omitempty"`
}

// FloorEvalResult aggregates the outcomes of all floors in floor order.
type FloorEvalResult struct {
	Passed      bool           `json:"passed"`
	Triggered   []string       `json:"triggered"`
	ReasonCodes []string       `json:"reason_codes"`
	Outcomes    []FloorOutcome `json:"outcomes,omitempty"`
}

// CriticalTriggered reports whether any of the given critical floors is in
// the triggered set.
func (f *FloorEvalResult) CriticalTriggered(critical map[string]bool) bool {
	for _, name := range f.Triggered {
		if critical[name] {
			return true
		}
	}
	return false
}

// Warnings counts triggered non-critical floors. The cooling engine treats
// this as the warning signal when no explicit one is supplied.
func (f *FloorEvalResult) Warnings(critical map[string]bool) int {
	n := 0
	for _, name := range f.Triggered {
		if !critical[name] {
			n++
		}
	}
	return n
}
