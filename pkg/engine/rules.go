package engine

import "sort"

// Rule flags that alter game behaviour. Stored per game.
const (
	RuleNoCheck        = "NO_CHECK"         // defer semantic order validation to adjudication
	RuleBuildAny       = "BUILD_ANY"        // build on any owned centre, not only home centres
	RulePowerChoice    = "POWER_CHOICE"     // players pick their power at join time
	RuleSolitaire      = "SOLITAIRE"        // single-player game, no draw votes
	RuleCivilDisorder  = "CIVIL_DISORDER"   // absent powers default to holds/civil disband
	RuleDontSkipPhases = "DONT_SKIP_PHASES" // keep empty retreat/adjustment phases
)

// RuleSet is a set of enabled rule flags.
type RuleSet map[string]bool

// NewRuleSet builds a RuleSet from a list of flag names.
func NewRuleSet(flags ...string) RuleSet {
	rs := make(RuleSet, len(flags))
	for _, f := range flags {
		rs[f] = true
	}
	return rs
}

// Has reports whether the given rule flag is enabled.
func (rs RuleSet) Has(flag string) bool {
	return rs[flag]
}

// List returns the enabled flags sorted alphabetically.
func (rs RuleSet) List() []string {
	var flags []string
	for f, on := range rs {
		if on {
			flags = append(flags, f)
		}
	}
	sort.Strings(flags)
	return flags
}
