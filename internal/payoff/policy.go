package payoff

import (
	"strings"

	"options-dashboard/internal/config"
	"options-dashboard/internal/models"
)

// Policy controls the spot range and resolution of a curve.
type Policy struct {
	StrikeStep  int
	RangeOffset int
}

// PolicyTable maps each underlying to its sampling policy.
type PolicyTable map[models.Underlying]Policy

// DefaultPolicies derives a table from the exchange strike steps.
func DefaultPolicies() PolicyTable {
	t := make(PolicyTable, len(models.AllUnderlyings))
	for _, u := range models.AllUnderlyings {
		info := u.Contract()
		t[u] = Policy{StrikeStep: info.StrikeStep, RangeOffset: info.RangeOffset}
	}
	return t
}

// PoliciesFromConfig overlays configured policies on the defaults.
func PoliciesFromConfig(cfg config.PayoffConfig) PolicyTable {
	t := DefaultPolicies()
	for name, p := range cfg.Policies {
		u, err := models.ParseUnderlying(strings.ToUpper(name))
		if err != nil || p.StrikeStep <= 0 {
			continue
		}
		t[u] = Policy{StrikeStep: p.StrikeStep, RangeOffset: p.RangeOffset}
	}
	return t
}

// Lookup returns the policy for u, falling back to the exchange facts.
func (t PolicyTable) Lookup(u models.Underlying) Policy {
	if p, ok := t[u]; ok && p.StrikeStep > 0 {
		return p
	}
	info := u.Contract()
	if info.StrikeStep == 0 {
		return Policy{StrikeStep: 50, RangeOffset: 1000}
	}
	return Policy{StrikeStep: info.StrikeStep, RangeOffset: info.RangeOffset}
}

// Reference selects the price a leg's P&L is measured against.
type Reference int

const (
	// ReferenceEntry measures against the average entry price.
	ReferenceEntry Reference = iota
	// ReferenceCurrent measures against the last traded price.
	ReferenceCurrent
)

// ParseReference maps "entry"/"current" to a Reference. Anything else is entry.
func ParseReference(s string) Reference {
	if strings.EqualFold(s, "current") {
		return ReferenceCurrent
	}
	return ReferenceEntry
}

func (r Reference) String() string {
	if r == ReferenceCurrent {
		return "current"
	}
	return "entry"
}
