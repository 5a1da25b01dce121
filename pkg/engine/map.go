package engine

// ProvinceCount is the number of provinces on the standard map.
const ProvinceCount = 75

// ProvinceType classifies a province as land, sea, or coastal.
type ProvinceType int

const (
	Land    ProvinceType = iota // Inland province (armies only)
	Sea                         // Sea province (fleets only)
	Coastal                     // Coastal province (armies or fleets)
)

// Coast represents a specific coast of a province with split coasts.
type Coast string

const (
	NoCoast    Coast = ""
	NorthCoast Coast = "nc"
	SouthCoast Coast = "sc"
	EastCoast  Coast = "ec"
	WestCoast  Coast = "wc"
)

// Province represents a single province on the map.
type Province struct {
	ID             string
	Name           string
	Type           ProvinceType
	IsSupplyCenter bool
	HomePower      Power   // Power whose home centre this is ("" if none)
	Coasts         []Coast // Non-empty only for split-coast provinces
}

// Adjacency describes a directed connection between two provinces.
// For provinces with split coasts, fleet adjacencies specify which coast.
type Adjacency struct {
	From      string
	FromCoast Coast
	To        string
	ToCoast   Coast
	ArmyOK    bool
	FleetOK   bool
}

// Map holds the full province and adjacency graph. Immutable after load.
type Map struct {
	Provinces   map[string]*Province
	Adjacencies map[string][]Adjacency // keyed by from province ID

	// VictoryThreshold is the centre count required for a solo win.
	VictoryThreshold int

	provIndex map[string]int
	provNames [ProvinceCount]string

	// adjCache holds coast-agnostic reachability bits for the hot path:
	// bit 0 = army can traverse, bit 1 = fleet can traverse (any coast pair).
	adjCache [ProvinceCount][ProvinceCount]uint8
}

const (
	adjArmyBit  = 1 << 0
	adjFleetBit = 1 << 1
)

// ProvinceIndex returns the dense index (0..ProvinceCount-1) for a province ID,
// or -1 if the province is not found.
func (m *Map) ProvinceIndex(id string) int {
	idx, ok := m.provIndex[id]
	if !ok {
		return -1
	}
	return idx
}

// ProvinceName returns the province ID for a given dense index.
func (m *Map) ProvinceName(idx int) string {
	return m.provNames[idx]
}

// Adjacent returns true if there is a valid adjacency from src to dst
// for the given unit type and coast constraints.
func (m *Map) Adjacent(src string, srcCoast Coast, dst string, dstCoast Coast, isFleet bool) bool {
	if srcCoast == NoCoast && dstCoast == NoCoast {
		si, di := m.ProvinceIndex(src), m.ProvinceIndex(dst)
		if si >= 0 && di >= 0 {
			bit := uint8(adjArmyBit)
			if isFleet {
				bit = adjFleetBit
			}
			return m.adjCache[si][di]&bit != 0
		}
	}
	for _, adj := range m.Adjacencies[src] {
		if adj.To != dst {
			continue
		}
		if isFleet && !adj.FleetOK {
			continue
		}
		if !isFleet && !adj.ArmyOK {
			continue
		}
		if srcCoast != NoCoast && adj.FromCoast != NoCoast && adj.FromCoast != srcCoast {
			continue
		}
		if dstCoast != NoCoast && adj.ToCoast != NoCoast && adj.ToCoast != dstCoast {
			continue
		}
		return true
	}
	return false
}

// UnitTypeLegal reports whether a unit of the given type may occupy loc.
func (m *Map) UnitTypeLegal(ut UnitType, loc string) bool {
	p, ok := m.Provinces[loc]
	if !ok {
		return false
	}
	if ut == Army {
		return p.Type != Sea
	}
	return p.Type != Land
}

// FleetCoastsTo returns all coasts at the destination province reachable by
// fleet from the given source province and coast.
func (m *Map) FleetCoastsTo(src string, srcCoast Coast, dst string) []Coast {
	var coasts []Coast
	for _, adj := range m.Adjacencies[src] {
		if adj.To != dst || !adj.FleetOK {
			continue
		}
		if srcCoast != NoCoast && adj.FromCoast != NoCoast && adj.FromCoast != srcCoast {
			continue
		}
		coasts = append(coasts, adj.ToCoast)
	}
	return coasts
}

// ProvincesAdjacentTo returns all province IDs adjacent to the given province
// accessible by the given unit type.
func (m *Map) ProvincesAdjacentTo(provID string, coast Coast, isFleet bool) []string {
	seen := make(map[string]bool)
	var result []string
	for _, adj := range m.Adjacencies[provID] {
		if isFleet && !adj.FleetOK {
			continue
		}
		if !isFleet && !adj.ArmyOK {
			continue
		}
		if coast != NoCoast && adj.FromCoast != NoCoast && adj.FromCoast != coast {
			continue
		}
		if !seen[adj.To] {
			seen[adj.To] = true
			result = append(result, adj.To)
		}
	}
	return result
}

// HasCoasts returns true if the province has split coasts (Spain, St
// Petersburg, Bulgaria on the standard map).
func (m *Map) HasCoasts(provID string) bool {
	p, ok := m.Provinces[provID]
	return ok && len(p.Coasts) > 0
}

// SupplyCenters returns the IDs of all supply-centre provinces, sorted by
// dense index so the result is deterministic.
func (m *Map) SupplyCenters() []string {
	var scs []string
	for _, id := range m.provNames {
		if p := m.Provinces[id]; p != nil && p.IsSupplyCenter {
			scs = append(scs, id)
		}
	}
	return scs
}

// HomeCenters returns the home supply centre IDs for a power, sorted by
// dense index.
func (m *Map) HomeCenters(power Power) []string {
	var centers []string
	for _, id := range m.provNames {
		if p := m.Provinces[id]; p != nil && p.IsSupplyCenter && p.HomePower == power {
			centers = append(centers, id)
		}
	}
	return centers
}

// WaterDistance returns the length of the shortest all-sea path between two
// coastal provinces, counting the number of sea provinces crossed. Used for
// convoy feasibility: a return of -1 means no sea route exists at all.
func (m *Map) WaterDistance(src, dst string) int {
	srcProv, dstProv := m.Provinces[src], m.Provinces[dst]
	if srcProv == nil || dstProv == nil || srcProv.Type == Sea || dstProv.Type == Sea {
		return -1
	}

	visited := make(map[string]bool)
	queue := []string{}
	for _, adj := range m.Adjacencies[src] {
		if adj.FleetOK && m.Provinces[adj.To] != nil && m.Provinces[adj.To].Type == Sea {
			visited[adj.To] = true
			queue = append(queue, adj.To)
		}
	}

	dist := 1
	for len(queue) > 0 {
		var next []string
		for _, cur := range queue {
			for _, adj := range m.Adjacencies[cur] {
				if !adj.FleetOK {
					continue
				}
				if adj.To == dst {
					return dist
				}
				p := m.Provinces[adj.To]
				if p != nil && p.Type == Sea && !visited[adj.To] {
					visited[adj.To] = true
					next = append(next, adj.To)
				}
			}
		}
		queue = next
		dist++
	}
	return -1
}

// buildIndex computes the dense province index and the adjacency cache.
// Called once at map construction.
func (m *Map) buildIndex(sortedIDs []string) {
	m.provIndex = make(map[string]int, len(sortedIDs))
	for i, id := range sortedIDs {
		m.provIndex[id] = i
		m.provNames[i] = id
	}
	for from, adjs := range m.Adjacencies {
		fi := m.provIndex[from]
		for _, adj := range adjs {
			ti := m.provIndex[adj.To]
			if adj.ArmyOK {
				m.adjCache[fi][ti] |= adjArmyBit
			}
			if adj.FleetOK {
				m.adjCache[fi][ti] |= adjFleetBit
			}
		}
	}
}
