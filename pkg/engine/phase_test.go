package engine

import "testing"

func TestAdvanceSkipsEmptyRetreatPhase(t *testing.T) {
	m := StandardMap()
	gs := NewInitialState(m)

	AdvanceState(gs, m, nil)
	if gs.Season != Fall || gs.Phase != PhaseMovement {
		t.Errorf("spring movement with no dislodged should advance straight to fall movement, got %s %s", gs.Season, gs.Phase)
	}
}

func TestAdvanceStopsAtRetreatWhenDislodged(t *testing.T) {
	m := StandardMap()
	gs := NewInitialState(m)
	gs.Dislodged = []DislodgedUnit{{
		Unit:          Unit{Army, Italy, "ven", NoCoast},
		DislodgedFrom: "ven",
		AttackerFrom:  "tri",
	}}

	AdvanceState(gs, m, nil)
	if gs.Season != Spring || gs.Phase != PhaseRetreat {
		t.Errorf("should stop at spring retreat, got %s %s", gs.Season, gs.Phase)
	}
}

func TestAdvanceSkipsEmptyAdjustmentPhase(t *testing.T) {
	m := StandardMap()
	gs := NewInitialState(m)
	gs.Season = Fall
	// Every power's units match its centres at game start, so the winter
	// adjustment is empty and the year rolls over.
	AdvanceState(gs, m, nil)
	if gs.Year != 1902 || gs.Season != Spring || gs.Phase != PhaseMovement {
		t.Errorf("empty winter should be skipped, got %d %s %s", gs.Year, gs.Season, gs.Phase)
	}
}

func TestAdvanceStopsAtAdjustmentWhenDeltaExists(t *testing.T) {
	m := StandardMap()
	gs := NewInitialState(m)
	gs.Season = Fall
	// France takes Belgium: 4 centres, 3 units.
	gs.Units = append(gs.Units[:0:0], gs.Units...)
	u := gs.UnitAt("par")
	u.Province = "bel"

	AdvanceState(gs, m, nil)
	if gs.Season != Winter || gs.Phase != PhaseAdjustment {
		t.Errorf("should stop at winter adjustment, got %s %s", gs.Season, gs.Phase)
	}
	if gs.SupplyCenters["bel"] != France {
		t.Error("fall transition should transfer centre ownership")
	}
}

func TestDontSkipPhasesKeepsEveryPhase(t *testing.T) {
	m := StandardMap()
	rules := NewRuleSet(RuleDontSkipPhases)
	gs := NewInitialState(m)

	AdvanceState(gs, m, rules)
	if gs.Season != Spring || gs.Phase != PhaseRetreat {
		t.Errorf("DONT_SKIP_PHASES must visit the empty spring retreat, got %s %s", gs.Season, gs.Phase)
	}

	AdvanceState(gs, m, rules)
	if gs.Season != Fall || gs.Phase != PhaseMovement {
		t.Errorf("expected fall movement, got %s %s", gs.Season, gs.Phase)
	}
}

func TestCheckVictory(t *testing.T) {
	m := StandardMap()
	gs := NewInitialState(m)
	if w := CheckVictory(gs, m); w != Neutral {
		t.Errorf("no winner at game start, got %s", w)
	}

	centers := m.SupplyCenters()
	for i := 0; i < m.VictoryThreshold; i++ {
		gs.SupplyCenters[centers[i]] = France
	}
	if w := CheckVictory(gs, m); w != France {
		t.Errorf("France at the threshold should win, got %s", w)
	}
}

func TestUpdateSupplyCenterOwnershipLeavesUnoccupiedCenters(t *testing.T) {
	m := StandardMap()
	gs := NewInitialState(m)
	before := gs.SupplyCenters["bel"]

	UpdateSupplyCenterOwnership(gs, m)
	if gs.SupplyCenters["bel"] != before {
		t.Error("unoccupied centres must keep their owner")
	}
}
