package engine

// GameState represents a complete snapshot of the board at a point in time.
type GameState struct {
	Year          int              `json:"year"`
	Season        Season           `json:"season"`
	Phase         PhaseType        `json:"phase"`
	Units         []Unit           `json:"units"`
	SupplyCenters map[string]Power `json:"supply_centers"`
	Dislodged     []DislodgedUnit  `json:"dislodged,omitempty"`
	Standoffs     []string         `json:"standoffs,omitempty"` // provinces vacated by a standoff last movement phase
}

// DislodgedUnit is a unit that was dislodged and needs a retreat order.
type DislodgedUnit struct {
	Unit             Unit   `json:"unit"`
	DislodgedFrom    string `json:"dislodged_from"`
	AttackerFrom     string `json:"attacker_from"`
	AttackerByConvoy bool   `json:"attacker_by_convoy,omitempty"` // attacker arrived by convoy: retreat back is allowed
}

// PhaseLabel returns the short phase string for this state.
func (gs *GameState) PhaseLabel() PhaseName {
	return MakePhaseName(gs.Year, gs.Season, gs.Phase)
}

// NewInitialState returns the standard starting position (Spring 1901 Movement).
func NewInitialState(m *Map) *GameState {
	return &GameState{
		Year:          1901,
		Season:        Spring,
		Phase:         PhaseMovement,
		Units:         initialUnits(),
		SupplyCenters: initialSupplyCenters(m),
	}
}

// UnitAt returns the unit at the given province, or nil if none.
// Dislodged units are not considered.
func (gs *GameState) UnitAt(province string) *Unit {
	for i := range gs.Units {
		if gs.Units[i].Province == province {
			return &gs.Units[i]
		}
	}
	return nil
}

// SupplyCenterCount returns the number of centres owned by the given power.
func (gs *GameState) SupplyCenterCount(power Power) int {
	count := 0
	for _, owner := range gs.SupplyCenters {
		if owner == power {
			count++
		}
	}
	return count
}

// UnitCount returns the number of units belonging to the given power.
func (gs *GameState) UnitCount(power Power) int {
	count := 0
	for _, u := range gs.Units {
		if u.Power == power {
			count++
		}
	}
	return count
}

// UnitsOf returns all units belonging to the given power.
func (gs *GameState) UnitsOf(power Power) []Unit {
	var units []Unit
	for _, u := range gs.Units {
		if u.Power == power {
			units = append(units, u)
		}
	}
	return units
}

// DislodgedOf returns the dislodged units belonging to the given power.
func (gs *GameState) DislodgedOf(power Power) []DislodgedUnit {
	var units []DislodgedUnit
	for _, d := range gs.Dislodged {
		if d.Unit.Power == power {
			units = append(units, d)
		}
	}
	return units
}

// PowerIsAlive returns true if the power still has a centre or a unit.
func (gs *GameState) PowerIsAlive(power Power) bool {
	return gs.SupplyCenterCount(power) > 0 || gs.UnitCount(power) > 0
}

// Clone returns a deep copy of the GameState. Mutations to the clone do not
// affect the original.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		Year:   gs.Year,
		Season: gs.Season,
		Phase:  gs.Phase,
	}
	if gs.Units != nil {
		c.Units = make([]Unit, len(gs.Units))
		copy(c.Units, gs.Units)
	}
	if gs.SupplyCenters != nil {
		c.SupplyCenters = make(map[string]Power, len(gs.SupplyCenters))
		for k, v := range gs.SupplyCenters {
			c.SupplyCenters[k] = v
		}
	}
	if gs.Dislodged != nil {
		c.Dislodged = make([]DislodgedUnit, len(gs.Dislodged))
		copy(c.Dislodged, gs.Dislodged)
	}
	if gs.Standoffs != nil {
		c.Standoffs = make([]string, len(gs.Standoffs))
		copy(c.Standoffs, gs.Standoffs)
	}
	return c
}

// CloneInto copies gs into dst, reusing dst's allocated slices and map to
// avoid allocations. After calling, dst is a deep copy of gs.
func (gs *GameState) CloneInto(dst *GameState) {
	dst.Year = gs.Year
	dst.Season = gs.Season
	dst.Phase = gs.Phase

	if gs.Units != nil {
		if cap(dst.Units) >= len(gs.Units) {
			dst.Units = dst.Units[:len(gs.Units)]
		} else {
			dst.Units = make([]Unit, len(gs.Units))
		}
		copy(dst.Units, gs.Units)
	} else {
		dst.Units = nil
	}

	if gs.SupplyCenters != nil {
		if dst.SupplyCenters == nil {
			dst.SupplyCenters = make(map[string]Power, len(gs.SupplyCenters))
		} else {
			clear(dst.SupplyCenters)
		}
		for k, v := range gs.SupplyCenters {
			dst.SupplyCenters[k] = v
		}
	} else {
		dst.SupplyCenters = nil
	}

	if gs.Dislodged != nil {
		if cap(dst.Dislodged) >= len(gs.Dislodged) {
			dst.Dislodged = dst.Dislodged[:len(gs.Dislodged)]
		} else {
			dst.Dislodged = make([]DislodgedUnit, len(gs.Dislodged))
		}
		copy(dst.Dislodged, gs.Dislodged)
	} else {
		dst.Dislodged = nil
	}

	if gs.Standoffs != nil {
		if cap(dst.Standoffs) >= len(gs.Standoffs) {
			dst.Standoffs = dst.Standoffs[:len(gs.Standoffs)]
		} else {
			dst.Standoffs = make([]string, len(gs.Standoffs))
		}
		copy(dst.Standoffs, gs.Standoffs)
	} else {
		dst.Standoffs = nil
	}
}

func initialUnits() []Unit {
	return []Unit{
		// Austria
		{Army, Austria, "vie", NoCoast},
		{Army, Austria, "bud", NoCoast},
		{Fleet, Austria, "tri", NoCoast},
		// England
		{Fleet, England, "lon", NoCoast},
		{Fleet, England, "edi", NoCoast},
		{Army, England, "lvp", NoCoast},
		// France
		{Fleet, France, "bre", NoCoast},
		{Army, France, "par", NoCoast},
		{Army, France, "mar", NoCoast},
		// Germany
		{Fleet, Germany, "kie", NoCoast},
		{Army, Germany, "ber", NoCoast},
		{Army, Germany, "mun", NoCoast},
		// Italy
		{Fleet, Italy, "nap", NoCoast},
		{Army, Italy, "rom", NoCoast},
		{Army, Italy, "ven", NoCoast},
		// Russia
		{Fleet, Russia, "stp", SouthCoast},
		{Army, Russia, "mos", NoCoast},
		{Army, Russia, "war", NoCoast},
		{Fleet, Russia, "sev", NoCoast},
		// Turkey
		{Fleet, Turkey, "ank", NoCoast},
		{Army, Turkey, "con", NoCoast},
		{Army, Turkey, "smy", NoCoast},
	}
}

// initialSupplyCenters assigns home centres to their powers and every other
// centre on the map to Neutral.
func initialSupplyCenters(m *Map) map[string]Power {
	scs := make(map[string]Power)
	for _, id := range m.SupplyCenters() {
		scs[id] = m.Provinces[id].HomePower
	}
	return scs
}
