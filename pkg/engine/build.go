package engine

import "sort"

// BuildOrderType represents an adjustment-phase order.
type BuildOrderType int

const (
	BuildUnit   BuildOrderType = iota // Build a new unit
	DisbandUnit                       // Disband an existing unit
	WaiveBuild                        // Voluntarily skip a build
)

// BuildOrder represents an order given during the adjustment phase.
type BuildOrder struct {
	Power    Power          `json:"power"`
	Type     BuildOrderType `json:"type"`
	UnitType UnitType       `json:"unit_type"`
	Location string         `json:"location,omitempty"`
	Coast    Coast          `json:"coast,omitempty"`
}

// BuildResult describes the outcome of a build order.
type BuildResult struct {
	Order   BuildOrder    `json:"order"`
	Results []OrderResult `json:"results"`
}

// BuildDelta returns owned_centres - units for a power. Positive means the
// power may build, negative means it must disband.
func BuildDelta(gs *GameState, power Power) int {
	return gs.SupplyCenterCount(power) - gs.UnitCount(power)
}

// ValidateBuildOrder checks if an adjustment order is legal. Under BUILD_ANY
// builds are permitted on any owned supply centre, not only home centres.
func ValidateBuildOrder(order BuildOrder, gs *GameState, m *Map, rules RuleSet) error {
	switch order.Type {
	case BuildUnit:
		return validateBuild(order, gs, m, rules)
	case DisbandUnit:
		return validateDisband(order, gs)
	case WaiveBuild:
		return nil
	default:
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "unknown build order type",
		}
	}
}

func validateBuild(order BuildOrder, gs *GameState, m *Map, rules RuleSet) error {
	if BuildDelta(gs, order.Power) <= 0 {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no builds available (units >= supply centers)",
		}
	}

	prov := m.Provinces[order.Location]
	if prov == nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "province does not exist",
		}
	}
	if !prov.IsSupplyCenter {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "not a supply center",
		}
	}
	if !rules.Has(RuleBuildAny) && prov.HomePower != order.Power {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "not a home supply center",
		}
	}

	if gs.SupplyCenters[order.Location] != order.Power {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "supply center not currently owned",
		}
	}

	if gs.UnitAt(order.Location) != nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "province is occupied",
		}
	}

	if order.UnitType == Fleet && prov.Type == Land {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "cannot build fleet in inland province",
		}
	}

	if order.UnitType == Fleet && len(prov.Coasts) > 0 && order.Coast == NoCoast {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "must specify coast for fleet build",
		}
	}

	return nil
}

func validateDisband(order BuildOrder, gs *GameState) error {
	if BuildDelta(gs, order.Power) >= 0 {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no disbands required (units <= supply centers)",
		}
	}

	unit := gs.UnitAt(order.Location)
	if unit == nil {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "no unit at location",
		}
	}
	if unit.Power != order.Power {
		return &ValidationError{
			Order:   Order{Location: order.Location, Power: order.Power},
			Message: "unit belongs to another power",
		}
	}

	return nil
}

// ResolveBuildOrders processes build/disband orders for all powers. Powers
// that owe disbands and did not order enough of them get civil-disorder
// disbands chosen deterministically.
func ResolveBuildOrders(orders []BuildOrder, gs *GameState, m *Map, rules RuleSet) []BuildResult {
	var results []BuildResult

	buildsByPower := make(map[Power][]BuildOrder)
	for _, o := range orders {
		buildsByPower[o.Power] = append(buildsByPower[o.Power], o)
	}

	for _, power := range AllPowers() {
		diff := BuildDelta(gs, power)
		submitted := buildsByPower[power]

		if diff > 0 {
			built := 0
			builtAt := make(map[string]bool)
			for _, o := range submitted {
				if o.Type != BuildUnit && o.Type != WaiveBuild {
					continue
				}
				if built >= diff {
					results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultBounce}})
					continue
				}
				if o.Type == WaiveBuild {
					results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultOK}})
					built++
					continue
				}
				if builtAt[o.Location] {
					results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultVoid}})
					continue
				}
				if err := ValidateBuildOrder(o, gs, m, rules); err != nil {
					results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultVoid}})
					continue
				}
				builtAt[o.Location] = true
				results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultOK}})
				built++
			}
		} else if diff < 0 {
			needed := -diff
			disbanded := 0
			gone := make(map[string]bool)
			for _, o := range submitted {
				if o.Type != DisbandUnit {
					continue
				}
				if err := ValidateBuildOrder(o, gs, m, rules); err != nil {
					results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultVoid}})
					continue
				}
				if disbanded >= needed || gone[o.Location] {
					results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultBounce}})
					continue
				}
				gone[o.Location] = true
				results = append(results, BuildResult{Order: o, Results: []OrderResult{ResultOK}})
				disbanded++
			}

			if disbanded < needed {
				results = append(results, civilDisorderDisbands(power, needed-disbanded, gone, gs, m)...)
			}
		}
	}

	return results
}

// civilDisorderDisbands chooses automatic disbands for a power that did not
// submit enough disband orders. The published rule: farthest from any home
// centre first, fleets before armies on equal distance, then alphabetical by
// province.
func civilDisorderDisbands(power Power, count int, already map[string]bool, gs *GameState, m *Map) []BuildResult {
	units := gs.UnitsOf(power)
	if len(units) == 0 || count == 0 {
		return nil
	}

	homes := m.HomeCenters(power)

	type unitDist struct {
		unit Unit
		dist int
	}
	var candidates []unitDist
	for _, u := range units {
		if already[u.Province] {
			continue
		}
		candidates = append(candidates, unitDist{u, minDistanceToHome(u.Province, homes, m)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.dist != b.dist {
			return a.dist > b.dist
		}
		if a.unit.Type != b.unit.Type {
			return a.unit.Type == Fleet
		}
		return a.unit.Province < b.unit.Province
	})

	if count > len(candidates) {
		count = len(candidates)
	}
	var results []BuildResult
	for _, c := range candidates[:count] {
		results = append(results, BuildResult{
			Order: BuildOrder{
				Power:    power,
				Type:     DisbandUnit,
				UnitType: c.unit.Type,
				Location: c.unit.Province,
				Coast:    c.unit.Coast,
			},
			Results: []OrderResult{ResultOK},
		})
	}
	return results
}

// minDistanceToHome computes the minimum BFS distance from a province to any
// home centre, over all adjacencies (army and fleet alike).
func minDistanceToHome(from string, homes []string, m *Map) int {
	const unreachable = 999
	if len(homes) == 0 {
		return unreachable
	}

	homeSet := make(map[string]bool)
	for _, h := range homes {
		homeSet[h] = true
	}
	if homeSet[from] {
		return 0
	}

	visited := map[string]bool{from: true}
	queue := []string{from}
	dist := 0

	for len(queue) > 0 {
		dist++
		var next []string
		for _, prov := range queue {
			for _, adj := range m.Adjacencies[prov] {
				if visited[adj.To] {
					continue
				}
				if homeSet[adj.To] {
					return dist
				}
				visited[adj.To] = true
				next = append(next, adj.To)
			}
		}
		queue = next
	}

	return unreachable
}

// ApplyBuildOrders updates the game state based on resolved build orders.
func ApplyBuildOrders(gs *GameState, results []BuildResult) {
	for _, r := range results {
		if len(r.Results) == 0 || r.Results[0] != ResultOK {
			continue
		}
		switch r.Order.Type {
		case BuildUnit:
			gs.Units = append(gs.Units, Unit{
				Type:     r.Order.UnitType,
				Power:    r.Order.Power,
				Province: r.Order.Location,
				Coast:    r.Order.Coast,
			})
		case DisbandUnit:
			for i := range gs.Units {
				if gs.Units[i].Province == r.Order.Location && gs.Units[i].Power == r.Order.Power {
					gs.Units = append(gs.Units[:i], gs.Units[i+1:]...)
					break
				}
			}
		}
	}
}
