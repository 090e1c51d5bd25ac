// Package identity derives the caller record from request context and
// validates human-sovereign authority tokens for cooling bypass.
package identity

import (
	"github.com/apexgov/core/pkg/contracts"
)

// sentinel used for every missing identity field.
const unknown = "unknown"

// ExtractCaller derives a Caller from transport context. Missing fields
// default to the "unknown" sentinel; an invalid trust level degrades to
// unknown rather than erroring.
func ExtractCaller(context map[string]any) contracts.Caller {
	caller := contracts.Caller{
		Source:     unknown,
		Model:      unknown,
		Tenant:     unknown,
		TrustLevel: contracts.TrustUnknown,
	}
	if context == nil {
		return caller
	}

	if s, ok := context["source"].(string); ok && s != "" {
		caller.Source = s
	}
	if m, ok := context["model"].(string); ok && m != "" {
		caller.Model = m
	}
	if t, ok := context["tenant"].(string); ok && t != "" {
		caller.Tenant = t
	}

	trust, ok := context["trust_level"].(string)
	if !ok {
		trust, _ = context["trust"].(string)
	}
	caller.TrustLevel = parseTrust(trust)

	return caller
}

func parseTrust(s string) contracts.TrustLevel {
	switch contracts.TrustLevel(s) {
	case contracts.TrustLow, contracts.TrustMedium, contracts.TrustHigh, contracts.TrustSovereign:
		return contracts.TrustLevel(s)
	}
	return contracts.TrustUnknown
}
