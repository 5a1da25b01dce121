package engine

// UpdateSupplyCenterOwnership transfers centre ownership to the powers
// occupying them. Called after the fall retreat phase (or fall movement when
// no retreats were needed), per the standard calendar.
func UpdateSupplyCenterOwnership(gs *GameState, m *Map) {
	for _, u := range gs.Units {
		prov := m.Provinces[u.Province]
		if prov != nil && prov.IsSupplyCenter {
			gs.SupplyCenters[u.Province] = u.Power
		}
	}
}

// CheckVictory returns the winning power, or Neutral if no power has reached
// the map's victory threshold. Under SOLITAIRE a lone player still needs the
// threshold.
func CheckVictory(gs *GameState, m *Map) Power {
	for _, power := range AllPowers() {
		if gs.SupplyCenterCount(power) >= m.VictoryThreshold {
			return power
		}
	}
	return Neutral
}

// NeedsAdjustmentPhase reports whether any power's unit count differs from
// its centre count after fall ownership changes.
func NeedsAdjustmentPhase(gs *GameState) bool {
	for _, power := range AllPowers() {
		if BuildDelta(gs, power) != 0 {
			return true
		}
	}
	return false
}

// AdvanceState moves the game to its next phase. Retreat phases are skipped
// when no unit was dislodged and adjustment phases when no power has a
// delta, unless DONT_SKIP_PHASES is set, in which case every phase of the
// calendar occurs and empty phases resolve trivially.
//
// The calendar: spring movement, spring retreat, fall movement, fall
// retreat, winter adjustment, then spring of the next year.
func AdvanceState(gs *GameState, m *Map, rules RuleSet) {
	skip := !rules.Has(RuleDontSkipPhases)

	for {
		advanceOnce(gs, m)
		if !skip {
			return
		}
		switch gs.Phase {
		case PhaseRetreat:
			if len(gs.Dislodged) > 0 {
				return
			}
			// An empty retreat phase still clears standoffs. The fall
			// centre-ownership update happens on the next notch.
			gs.Standoffs = nil
		case PhaseAdjustment:
			if NeedsAdjustmentPhase(gs) {
				return
			}
		default:
			return
		}
	}
}

// advanceOnce steps the phase calendar forward one notch, performing the
// centre-ownership update that belongs to the fall-to-winter transition.
func advanceOnce(gs *GameState, m *Map) {
	switch gs.Phase {
	case PhaseMovement:
		gs.Phase = PhaseRetreat
	case PhaseRetreat:
		if gs.Season == Spring {
			gs.Season = Fall
			gs.Phase = PhaseMovement
		} else {
			UpdateSupplyCenterOwnership(gs, m)
			gs.Season = Winter
			gs.Phase = PhaseAdjustment
		}
	case PhaseAdjustment:
		gs.Year++
		gs.Season = Spring
		gs.Phase = PhaseMovement
	}
}
