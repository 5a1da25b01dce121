package engine

import "sort"

// RetreatOrderType represents a retreat-phase order.
type RetreatOrderType int

const (
	RetreatMove    RetreatOrderType = iota // Retreat to adjacent province
	RetreatDisband                         // Unit is disbanded
)

// RetreatOrder represents an order given during the retreat phase.
type RetreatOrder struct {
	UnitType    UnitType         `json:"unit_type"`
	Power       Power            `json:"power"`
	Location    string           `json:"location"` // where the unit was dislodged from
	Coast       Coast            `json:"coast,omitempty"`
	Type        RetreatOrderType `json:"type"`
	Target      string           `json:"target,omitempty"`
	TargetCoast Coast            `json:"target_coast,omitempty"`
}

// RetreatResult describes the outcome of a retreat order.
type RetreatResult struct {
	Order   RetreatOrder  `json:"order"`
	Results []OrderResult `json:"results"`
}

// RetreatOptions lists the legal retreat destinations for a dislodged unit:
// adjacent for its type, unoccupied, not the attacker's origin (unless the
// attacker arrived by convoy), and not a standoff province from the
// preceding movement phase.
func RetreatOptions(d DislodgedUnit, gs *GameState, m *Map) []string {
	standoff := make(map[string]bool, len(gs.Standoffs))
	for _, p := range gs.Standoffs {
		standoff[p] = true
	}

	isFleet := d.Unit.Type == Fleet
	var options []string
	for _, prov := range m.ProvincesAdjacentTo(d.DislodgedFrom, d.Unit.Coast, isFleet) {
		if prov == d.AttackerFrom && !d.AttackerByConvoy {
			continue
		}
		if standoff[prov] {
			continue
		}
		if gs.UnitAt(prov) != nil {
			continue
		}
		options = append(options, prov)
	}
	sort.Strings(options)
	return options
}

// ValidateRetreatOrder checks if a retreat order is legal.
func ValidateRetreatOrder(order RetreatOrder, gs *GameState, m *Map) error {
	var dislodged *DislodgedUnit
	for i := range gs.Dislodged {
		if gs.Dislodged[i].DislodgedFrom == order.Location && gs.Dislodged[i].Unit.Power == order.Power {
			dislodged = &gs.Dislodged[i]
			break
		}
	}
	if dislodged == nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no dislodged unit at " + order.Location,
		}
	}

	if order.Type == RetreatDisband {
		return nil
	}

	// Cannot retreat to the attacker's origin, unless it arrived by convoy.
	if order.Target == dislodged.AttackerFrom && !dislodged.AttackerByConvoy {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "cannot retreat to province attacker came from",
		}
	}

	for _, p := range gs.Standoffs {
		if order.Target == p {
			return &ValidationError{
				Order:   Order{Location: order.Location, Power: order.Power},
				Message: "cannot retreat to standoff province " + p,
			}
		}
	}

	isFleet := order.UnitType == Fleet
	if !m.Adjacent(order.Location, order.Coast, order.Target, order.TargetCoast, isFleet) {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "target not adjacent for retreat",
		}
	}

	if gs.UnitAt(order.Target) != nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "cannot retreat to occupied province",
		}
	}

	return nil
}

// ResolveRetreats processes retreat orders. If two units try to retreat to
// the same province, both disband. Unordered and invalidly ordered dislodged
// units disband.
func ResolveRetreats(orders []RetreatOrder, gs *GameState, m *Map) []RetreatResult {
	var results []RetreatResult

	orderedUnits := make(map[string]bool)
	for _, o := range orders {
		orderedUnits[o.Location] = true
	}

	// Default: disband any unordered dislodged units.
	for _, d := range gs.Dislodged {
		if !orderedUnits[d.DislodgedFrom] {
			results = append(results, RetreatResult{
				Order: RetreatOrder{
					UnitType: d.Unit.Type,
					Power:    d.Unit.Power,
					Location: d.DislodgedFrom,
					Coast:    d.Unit.Coast,
					Type:     RetreatDisband,
				},
				Results: []OrderResult{ResultOK},
			})
		}
	}

	// Count contested retreat targets (only among valid retreat moves).
	targetCounts := make(map[string]int)
	for _, o := range orders {
		if o.Type == RetreatMove && ValidateRetreatOrder(o, gs, m) == nil {
			targetCounts[o.Target]++
		}
	}

	for _, o := range orders {
		if o.Type == RetreatDisband {
			results = append(results, RetreatResult{Order: o, Results: []OrderResult{ResultOK}})
			continue
		}

		if err := ValidateRetreatOrder(o, gs, m); err != nil {
			// Invalid retreat disbands the unit.
			results = append(results, RetreatResult{Order: o, Results: []OrderResult{ResultVoid}})
			continue
		}

		if targetCounts[o.Target] > 1 {
			// Simultaneous retreats to one province: all disband.
			results = append(results, RetreatResult{Order: o, Results: []OrderResult{ResultBounce}})
		} else {
			results = append(results, RetreatResult{Order: o, Results: []OrderResult{ResultOK}})
		}
	}

	return results
}

// ApplyRetreats updates the game state based on resolved retreat orders.
func ApplyRetreats(gs *GameState, results []RetreatResult, m *Map) {
	for _, r := range results {
		if r.Order.Type != RetreatMove || len(r.Results) == 0 || r.Results[0] != ResultOK {
			continue // disbanded, bounced, or void units are not re-placed
		}
		coast := r.Order.TargetCoast
		if coast == NoCoast && m.HasCoasts(r.Order.Target) {
			coasts := m.FleetCoastsTo(r.Order.Location, r.Order.Coast, r.Order.Target)
			if len(coasts) == 1 {
				coast = coasts[0]
			}
		}
		gs.Units = append(gs.Units, Unit{
			Type:     r.Order.UnitType,
			Power:    r.Order.Power,
			Province: r.Order.Target,
			Coast:    coast,
		})
	}

	gs.Dislodged = nil
	gs.Standoffs = nil
}
