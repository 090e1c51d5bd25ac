// Package witness computes the evidence a caller must supply before a
// judged action can proceed on retry. High-stakes classes demand the
// tri-witness: three independent evidence channels.
package witness

import (
	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/floors"
)

// Evidence identifiers.
const (
	CorroboratingSource    = "corroborating_source"
	WitnessDocumentary     = "witness_documentary"
	WitnessComputational   = "witness_computational"
	WitnessHuman           = "witness_human"
	HumanConfirmationToken = "human_confirmation_token"
	VerifiedSource         = "verified_source"
	AntiHantuReview        = "antihantu_review"
)

// RequiredEvidence returns the ordered evidence set for a verdict, action
// class, and triggered floor set. Deterministic in its inputs.
func RequiredEvidence(verdict contracts.Verdict, class contracts.ActionClass, triggered []string) []string {
	var evidence []string

	switch class {
	case contracts.ClassReadOnly:
		// A clean read needs nothing; a refused read still needs nothing
		// because there is no retry path to unlock.
	case contracts.ClassWriteReversible:
		evidence = append(evidence, CorroboratingSource)
	case contracts.ClassDelete, contracts.ClassPay:
		evidence = append(evidence, WitnessDocumentary, WitnessComputational, WitnessHuman)
	case contracts.ClassSelfModify:
		evidence = append(evidence, WitnessDocumentary, WitnessComputational, WitnessHuman, HumanConfirmationToken)
	}

	for _, name := range triggered {
		switch name {
		case floors.F2Truth:
			evidence = appendUnique(evidence, VerifiedSource)
		case floors.F9AntiHantu:
			evidence = appendUnique(evidence, AntiHantuReview)
		}
	}

	return evidence
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
