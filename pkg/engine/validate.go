package engine

import "fmt"

// ValidationError describes why an order is invalid.
type ValidationError struct {
	Order   Order
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Order.Describe(), e.Message)
}

// ValidateOrder checks whether a movement order is legal given the current
// game state and map. Returns nil if valid, or a ValidationError describing
// the problem. Validation is pure: no state is changed.
func ValidateOrder(order Order, gs *GameState, m *Map) error {
	unit := gs.UnitAt(order.Location)
	if unit == nil {
		return &ValidationError{order, "no unit at " + order.Location}
	}
	if unit.Power != order.Power {
		return &ValidationError{order, fmt.Sprintf("unit belongs to %s, not %s", unit.Power, order.Power)}
	}
	if unit.Type != order.UnitType {
		return &ValidationError{order, fmt.Sprintf("unit is %s, not %s", unit.Type, order.UnitType)}
	}

	switch order.Type {
	case OrderHold:
		return nil
	case OrderMove:
		return validateMove(order, gs, m)
	case OrderSupport:
		return validateSupport(order, gs, m)
	case OrderConvoy:
		return validateConvoy(order, gs, m)
	default:
		return &ValidationError{order, "unknown order type"}
	}
}

func validateMove(order Order, gs *GameState, m *Map) error {
	isFleet := order.UnitType == Fleet
	target := m.Provinces[order.Target]
	if target == nil {
		return &ValidationError{order, "target province does not exist: " + order.Target}
	}

	if isFleet && target.Type == Land {
		return &ValidationError{order, "fleet cannot move to inland province"}
	}
	if !isFleet && target.Type == Sea {
		return &ValidationError{order, "army cannot move to sea province"}
	}

	if order.ViaConvoy {
		if isFleet {
			return &ValidationError{order, "only armies move via convoy"}
		}
		if !canBeConvoyed(order.Location, order.Target, gs, m) {
			return &ValidationError{order, fmt.Sprintf("no convoy route from %s to %s", order.Location, order.Target)}
		}
		return nil
	}

	// Direct move
	if m.Adjacent(order.Location, order.Coast, order.Target, order.TargetCoast, isFleet) {
		if isFleet && m.HasCoasts(order.Target) {
			return validateFleetCoast(order, m)
		}
		return nil
	}

	// Not directly adjacent: an army may still move if a convoy is possible.
	if !isFleet && canBeConvoyed(order.Location, order.Target, gs, m) {
		return nil
	}

	return &ValidationError{order, fmt.Sprintf("cannot move from %s to %s", order.Location, order.Target)}
}

func validateFleetCoast(order Order, m *Map) error {
	if order.TargetCoast == NoCoast {
		coasts := m.FleetCoastsTo(order.Location, order.Coast, order.Target)
		if len(coasts) == 0 {
			return &ValidationError{order, "fleet cannot reach any coast of " + order.Target}
		}
		if len(coasts) > 1 {
			return &ValidationError{order, "must specify coast for " + order.Target}
		}
		return nil
	}
	coasts := m.FleetCoastsTo(order.Location, order.Coast, order.Target)
	for _, c := range coasts {
		if c == order.TargetCoast {
			return nil
		}
	}
	return &ValidationError{order, fmt.Sprintf("fleet cannot reach %s/%s from %s", order.Target, order.TargetCoast, order.Location)}
}

func validateSupport(order Order, gs *GameState, m *Map) error {
	supported := gs.UnitAt(order.AuxLoc)
	if supported == nil {
		return &ValidationError{order, "no unit at " + order.AuxLoc + " to support"}
	}

	isFleet := order.UnitType == Fleet

	if order.AuxTarget == "" {
		// Support hold: supporter must be able to reach the held province.
		if !m.Adjacent(order.Location, order.Coast, order.AuxLoc, NoCoast, isFleet) {
			return &ValidationError{order, fmt.Sprintf("cannot support hold at %s from %s", order.AuxLoc, order.Location)}
		}
		return nil
	}

	// Support move: supporter must be able to move to the destination
	// (it need not be adjacent to the supported unit).
	if !m.Adjacent(order.Location, order.Coast, order.AuxTarget, NoCoast, isFleet) {
		return &ValidationError{order, fmt.Sprintf("cannot support move to %s from %s", order.AuxTarget, order.Location)}
	}

	supportedIsFleet := supported.Type == Fleet
	if !m.Adjacent(order.AuxLoc, supported.Coast, order.AuxTarget, NoCoast, supportedIsFleet) {
		if supported.Type == Army && canBeConvoyed(order.AuxLoc, order.AuxTarget, gs, m) {
			return nil
		}
		return &ValidationError{order, fmt.Sprintf("supported unit at %s cannot reach %s", order.AuxLoc, order.AuxTarget)}
	}

	return nil
}

func validateConvoy(order Order, gs *GameState, m *Map) error {
	if order.UnitType != Fleet {
		return &ValidationError{order, "only fleets can convoy"}
	}

	prov := m.Provinces[order.Location]
	if prov == nil || prov.Type != Sea {
		return &ValidationError{order, "fleet must be in a sea province to convoy"}
	}

	convoyed := gs.UnitAt(order.AuxLoc)
	if convoyed == nil {
		return &ValidationError{order, "no unit at " + order.AuxLoc + " to convoy"}
	}
	if convoyed.Type != Army {
		return &ValidationError{order, "only armies can be convoyed"}
	}

	return nil
}

// canBeConvoyed checks if there is a possible convoy chain from src to dst
// using fleets currently at sea.
func canBeConvoyed(src, dst string, gs *GameState, m *Map) bool {
	srcProv := m.Provinces[src]
	dstProv := m.Provinces[dst]
	if srcProv == nil || dstProv == nil {
		return false
	}
	if srcProv.Type == Sea || dstProv.Type == Sea {
		return false
	}

	fleetAt := func(prov string) bool {
		u := gs.UnitAt(prov)
		return u != nil && u.Type == Fleet
	}

	// BFS through sea provinces occupied by fleets.
	visited := make(map[string]bool)
	queue := []string{}
	for _, adj := range m.Adjacencies[src] {
		if !adj.FleetOK {
			continue
		}
		seaProv := m.Provinces[adj.To]
		if seaProv != nil && seaProv.Type == Sea && fleetAt(adj.To) && !visited[adj.To] {
			visited[adj.To] = true
			queue = append(queue, adj.To)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, adj := range m.Adjacencies[current] {
			if !adj.FleetOK {
				continue
			}
			if adj.To == dst {
				return true
			}
			seaProv := m.Provinces[adj.To]
			if seaProv != nil && seaProv.Type == Sea && !visited[adj.To] && fleetAt(adj.To) {
				visited[adj.To] = true
				queue = append(queue, adj.To)
			}
		}
	}

	return false
}

// ValidateAndDefaultOrders takes submitted orders and returns a complete set
// of movement orders for all units on the board. Units without orders get a
// default Hold. Invalid orders are replaced with Hold and reported as VOID.
// Under NO_CHECK this is where deferred semantic validation finally runs.
func ValidateAndDefaultOrders(orders []Order, gs *GameState, m *Map) ([]Order, []ResolvedOrder) {
	ordered := make(map[string]bool) // province -> has order
	var valid []Order
	var voidResults []ResolvedOrder

	for _, o := range orders {
		if ordered[o.Location] {
			continue // one order per unit; earlier submission wins here
		}
		if err := ValidateOrder(o, gs, m); err != nil {
			hold := Order{
				UnitType: o.UnitType,
				Power:    o.Power,
				Location: o.Location,
				Coast:    o.Coast,
				Type:     OrderHold,
			}
			valid = append(valid, hold)
			voidResults = append(voidResults, ResolvedOrder{Order: o, Results: []OrderResult{ResultVoid}})
			ordered[o.Location] = true
			continue
		}
		valid = append(valid, o)
		ordered[o.Location] = true
	}

	// Default unordered units to Hold.
	for _, unit := range gs.Units {
		if !ordered[unit.Province] {
			valid = append(valid, Order{
				UnitType: unit.Type,
				Power:    unit.Power,
				Location: unit.Province,
				Coast:    unit.Coast,
				Type:     OrderHold,
			})
		}
	}

	return valid, voidResults
}
