package engine

import "sort"

// Resolution state constants for the Kruijswijk algorithm.
type resolutionState int

const (
	rsUnresolved resolutionState = iota
	rsGuessing
	rsResolved
)

// adjResult tracks the resolution of a single order in the dependency graph.
type adjResult struct {
	order        Order
	state        resolutionState
	resolution   bool // true = succeeds, false = fails
	provIdx      int16
	targetIdx    int16
	auxLocIdx    int16
	auxTargetIdx int16
}

// MovementResolution is the full outcome of adjudicating a movement phase.
type MovementResolution struct {
	Orders    []ResolvedOrder `json:"orders"`
	Dislodged []DislodgedUnit `json:"dislodged,omitempty"`
	// Standoffs lists provinces left vacant by a bounce of two or more
	// moves; dislodged units may not retreat into them.
	Standoffs []string `json:"standoffs,omitempty"`
}

// HasDislodged reports whether any unit was dislodged.
func (mr *MovementResolution) HasDislodged() bool {
	return len(mr.Dislodged) > 0
}

// ResolveOrders adjudicates a set of validated movement orders against the
// game state. Deterministic: identical inputs produce identical output.
func ResolveOrders(orders []Order, gs *GameState, m *Map) *MovementResolution {
	r := newResolver(orders, gs, m)
	for i := range r.adjBuf {
		r.adjudicate(r.adjBuf[i].provIdx)
	}
	res := &MovementResolution{}
	res.Orders, res.Dislodged, res.Standoffs = r.buildResults(nil, nil, nil)
	return res
}

type resolver struct {
	lookup    [ProvinceCount]int16 // province index -> adjBuf offset (-1 = no order)
	adjBuf    []adjResult          // dense storage for iteration
	orderList []Order
	gs        *GameState
	m         *Map
}

// orderAt returns the adjResult for the given province index, or nil if no
// order exists.
func (r *resolver) orderAt(provIdx int16) *adjResult {
	if provIdx < 0 {
		return nil
	}
	idx := r.lookup[provIdx]
	if idx < 0 {
		return nil
	}
	return &r.adjBuf[idx]
}

func (r *resolver) orderAtLoc(loc string) *adjResult {
	return r.orderAt(int16(r.m.ProvinceIndex(loc)))
}

// initLookup populates the lookup array and adjBuf province indices from the
// order list.
func (r *resolver) initLookup() {
	for i := range r.lookup {
		r.lookup[i] = -1
	}
	for i, o := range r.orderList {
		pIdx := int16(r.m.ProvinceIndex(o.Location))
		tIdx := int16(-1)
		if o.Target != "" {
			tIdx = int16(r.m.ProvinceIndex(o.Target))
		}
		aLIdx := int16(-1)
		if o.AuxLoc != "" {
			aLIdx = int16(r.m.ProvinceIndex(o.AuxLoc))
		}
		aTIdx := int16(-1)
		if o.AuxTarget != "" {
			aTIdx = int16(r.m.ProvinceIndex(o.AuxTarget))
		}
		r.adjBuf[i] = adjResult{
			order:        o,
			provIdx:      pIdx,
			targetIdx:    tIdx,
			auxLocIdx:    aLIdx,
			auxTargetIdx: aTIdx,
		}
		if pIdx >= 0 {
			r.lookup[pIdx] = int16(i)
		}
	}
}

func newResolver(orders []Order, gs *GameState, m *Map) *resolver {
	r := &resolver{
		adjBuf:    make([]adjResult, len(orders)),
		orderList: orders,
		gs:        gs,
		m:         m,
	}
	r.initLookup()
	return r
}

// adjudicate resolves the order at the given province index using the
// Kruijswijk approach: when encountering a cycle, guess a resolution, check
// consistency, back off if inconsistent. Paradoxical convoy cycles land on
// the "convoy disrupted" branch of the guess, which is the Szykman rule.
func (r *resolver) adjudicate(provIdx int16) bool {
	ar := r.orderAt(provIdx)
	if ar == nil {
		return false
	}

	switch ar.state {
	case rsResolved:
		return ar.resolution
	case rsGuessing:
		return ar.resolution
	}

	// Mark as guessing with initial guess = succeeds.
	ar.state = rsGuessing
	ar.resolution = true

	result := r.resolveOrder(provIdx)

	if ar.state == rsGuessing && result != ar.resolution {
		ar.resolution = result
		result = r.resolveOrder(provIdx)
	}

	ar.state = rsResolved
	ar.resolution = result
	return result
}

func (r *resolver) resolveOrder(provIdx int16) bool {
	ar := r.orderAt(provIdx)
	switch ar.order.Type {
	case OrderHold:
		return true
	case OrderMove:
		return r.resolveMove(provIdx)
	case OrderSupport:
		return r.resolveSupport(provIdx)
	case OrderConvoy:
		return r.resolveConvoy(provIdx)
	default:
		return false
	}
}

// resolveMove determines if a move order succeeds.
func (r *resolver) resolveMove(provIdx int16) bool {
	ar := r.orderAt(provIdx)

	convoyed := r.isConvoyed(ar.order)
	if convoyed && !r.hasConvoyPath(ar.order) {
		return false
	}

	attackStr := r.attackStrength(provIdx)
	holdStr := r.holdStrength(ar.targetIdx)

	if attackStr <= holdStr {
		return false
	}

	// Head-to-head battle: if the defender is moving to our province, our
	// attack must also exceed the defender's attack strength. A convoyed
	// move never engages head-to-head with the unit it swaps with.
	defender := r.orderAt(ar.targetIdx)
	if defender != nil && defender.order.Type == OrderMove && defender.targetIdx == provIdx &&
		!convoyed && !r.isConvoyed(defender.order) {
		defendAttack := r.attackStrength(ar.targetIdx)
		if attackStr <= defendAttack {
			return false
		}
	}

	// Attack must exceed all other prevent strengths at the target.
	for i := range r.adjBuf {
		other := &r.adjBuf[i]
		if other.provIdx == provIdx {
			continue
		}
		if other.order.Type == OrderMove && other.targetIdx == ar.targetIdx {
			preventStr := r.preventStrength(other.provIdx)
			if attackStr <= preventStr {
				return false
			}
		}
	}

	return true
}

// resolveSupport determines if support is successfully given (not cut).
func (r *resolver) resolveSupport(provIdx int16) bool {
	ar := r.orderAt(provIdx)

	for i := range r.adjBuf {
		other := &r.adjBuf[i]
		if other.order.Type != OrderMove {
			continue
		}
		if other.targetIdx != provIdx {
			continue
		}

		// Support cannot be cut by the unit being supported against.
		if ar.auxTargetIdx >= 0 && other.provIdx == ar.auxTargetIdx {
			continue
		}

		// Support cannot be cut by a unit of the same power.
		if other.order.Power == ar.order.Power {
			continue
		}

		// For a convoyed attack, the convoy must succeed for the support
		// to be cut.
		if r.isConvoyed(other.order) && !r.adjudicate(other.provIdx) {
			continue
		}

		return false
	}

	return true
}

// resolveConvoy determines if a convoying fleet stays in place (i.e. is not
// dislodged by a successful attack).
func (r *resolver) resolveConvoy(provIdx int16) bool {
	for i := range r.adjBuf {
		other := &r.adjBuf[i]
		if other.order.Type == OrderMove && other.targetIdx == provIdx {
			if r.adjudicate(other.provIdx) {
				return false
			}
		}
	}
	return true
}

// attackStrength computes the attack strength of a move order.
func (r *resolver) attackStrength(provIdx int16) int {
	ar := r.orderAt(provIdx)
	if ar.order.Type != OrderMove {
		return 0
	}

	strength := 1

	// A unit cannot dislodge a unit of its own power: strength collapses to
	// zero unless the occupier is successfully moving elsewhere.
	defenderPower := Neutral
	defenderStays := false
	occupier := r.gs.UnitAt(ar.order.Target)
	if occupier != nil {
		occOrder := r.orderAt(ar.targetIdx)
		moving := occOrder != nil && occOrder.order.Type == OrderMove && occOrder.targetIdx != provIdx
		if occupier.Power == ar.order.Power {
			if !moving {
				return 0
			}
		} else if occOrder == nil || occOrder.order.Type != OrderMove || !r.adjudicate(ar.targetIdx) {
			defenderPower = occupier.Power
			defenderStays = true
		}
	}

	// Count successful support for this move. Support given by the power
	// that owns a staying defender never helps dislodge that defender.
	for i := range r.adjBuf {
		other := &r.adjBuf[i]
		if other.order.Type != OrderSupport {
			continue
		}
		if other.auxLocIdx != provIdx {
			continue
		}
		if other.auxTargetIdx != ar.targetIdx {
			continue
		}
		if defenderStays && other.order.Power == defenderPower {
			continue
		}
		if r.adjudicate(other.provIdx) {
			strength++
		}
	}

	return strength
}

// holdStrength computes the hold strength of a province.
func (r *resolver) holdStrength(provIdx int16) int {
	ar := r.orderAt(provIdx)
	if ar == nil {
		return 0
	}

	if ar.order.Type == OrderMove {
		if r.adjudicate(provIdx) {
			return 0
		}
		return 1
	}

	strength := 1
	for i := range r.adjBuf {
		other := &r.adjBuf[i]
		if other.order.Type != OrderSupport {
			continue
		}
		if other.auxLocIdx != provIdx || other.auxTargetIdx >= 0 {
			continue
		}
		if r.adjudicate(other.provIdx) {
			strength++
		}
	}
	return strength
}

// preventStrength computes the prevent strength of a competing move order.
func (r *resolver) preventStrength(provIdx int16) int {
	ar := r.orderAt(provIdx)
	if ar.order.Type != OrderMove {
		return 0
	}

	// A convoyed move with no intact path prevents nothing.
	if r.isConvoyed(ar.order) && !r.hasConvoyPath(ar.order) {
		return 0
	}

	// A head-to-head loser prevents nothing at its target.
	defender := r.orderAt(ar.targetIdx)
	if defender != nil && defender.order.Type == OrderMove && defender.targetIdx == provIdx &&
		!r.isConvoyed(ar.order) && !r.isConvoyed(defender.order) {
		if !r.adjudicate(provIdx) {
			return 0
		}
	}

	strength := 1
	for i := range r.adjBuf {
		other := &r.adjBuf[i]
		if other.order.Type != OrderSupport {
			continue
		}
		if other.auxLocIdx != provIdx || other.auxTargetIdx != ar.targetIdx {
			continue
		}
		if r.adjudicate(other.provIdx) {
			strength++
		}
	}
	return strength
}

// isConvoyed returns true if the move travels by convoy: an army move flagged
// via-convoy, or an army move to a non-adjacent destination.
func (r *resolver) isConvoyed(order Order) bool {
	if order.Type != OrderMove || order.UnitType != Army {
		return false
	}
	if order.ViaConvoy {
		return true
	}
	return !r.m.Adjacent(order.Location, order.Coast, order.Target, NoCoast, false)
}

// hasConvoyPath checks if there is a chain of undisrupted convoying fleets
// for the given move.
func (r *resolver) hasConvoyPath(order Order) bool {
	srcIdx := int16(r.m.ProvinceIndex(order.Location))
	tgtIdx := int16(r.m.ProvinceIndex(order.Target))

	visited := make(map[int16]bool)
	queue := []int16{}

	for i := range r.adjBuf {
		ar := &r.adjBuf[i]
		if !r.convoysFor(ar, srcIdx, tgtIdx) {
			continue
		}
		if r.m.Adjacent(order.Location, NoCoast, ar.order.Location, NoCoast, true) {
			if r.adjudicate(ar.provIdx) {
				visited[ar.provIdx] = true
				queue = append(queue, ar.provIdx)
			}
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		currentAr := r.orderAt(current)
		if r.m.Adjacent(currentAr.order.Location, NoCoast, order.Target, NoCoast, true) {
			return true
		}

		for i := range r.adjBuf {
			ar := &r.adjBuf[i]
			if visited[ar.provIdx] || !r.convoysFor(ar, srcIdx, tgtIdx) {
				continue
			}
			if r.m.Adjacent(currentAr.order.Location, NoCoast, ar.order.Location, NoCoast, true) {
				if r.adjudicate(ar.provIdx) {
					visited[ar.provIdx] = true
					queue = append(queue, ar.provIdx)
				}
			}
		}
	}

	return false
}

// convoysFor reports whether ar is a sea-based convoy order for the move
// src -> tgt.
func (r *resolver) convoysFor(ar *adjResult, srcIdx, tgtIdx int16) bool {
	if ar.order.Type != OrderConvoy {
		return false
	}
	if ar.auxLocIdx != srcIdx || ar.auxTargetIdx != tgtIdx {
		return false
	}
	prov := r.m.Provinces[ar.order.Location]
	return prov != nil && prov.Type == Sea
}

// buildResults converts internal adjudication state to the external result
// format, reusing the provided slices when non-nil.
func (r *resolver) buildResults(
	resBuf []ResolvedOrder, disBuf []DislodgedUnit, standBuf []string,
) ([]ResolvedOrder, []DislodgedUnit, []string) {
	results := resBuf[:0]
	dislodged := disBuf[:0]
	standoffs := standBuf[:0]

	// target -> source province of the winning move (at most one per target)
	successfulMoves := make(map[string]string)
	// target -> count of failed moves, for standoff detection
	failedMoves := make(map[string]int)
	for i := range r.adjBuf {
		ar := &r.adjBuf[i]
		if ar.order.Type != OrderMove {
			continue
		}
		if ar.resolution {
			successfulMoves[ar.order.Target] = ar.order.Location
		} else {
			failedMoves[ar.order.Target]++
		}
	}

	for _, o := range r.orderList {
		ar := r.orderAtLoc(o.Location)
		if ar == nil {
			continue
		}

		var rs []OrderResult
		switch o.Type {
		case OrderMove:
			switch {
			case ar.resolution:
				rs = append(rs, ResultOK)
			case r.isConvoyed(o) && !r.hasConvoyPath(o):
				rs = append(rs, ResultNoConvoy)
			default:
				rs = append(rs, ResultBounce)
			}
		case OrderSupport:
			if ar.resolution {
				rs = append(rs, ResultOK)
			} else {
				rs = append(rs, ResultCut)
			}
		case OrderConvoy:
			if ar.resolution {
				rs = append(rs, ResultOK)
			} else {
				rs = append(rs, ResultDisrupted)
			}
		case OrderHold:
			rs = append(rs, ResultOK)
		}

		if attacker, ok := successfulMoves[o.Location]; ok {
			if o.Type != OrderMove || !ar.resolution {
				rs = append(rs, ResultDislodged)
				attackOrder := r.orderAtLoc(attacker)
				dislodged = append(dislodged, DislodgedUnit{
					Unit: Unit{
						Type:     o.UnitType,
						Power:    o.Power,
						Province: o.Location,
						Coast:    o.Coast,
					},
					DislodgedFrom:    o.Location,
					AttackerFrom:     attacker,
					AttackerByConvoy: attackOrder != nil && r.isConvoyed(attackOrder.order),
				})
			}
		}

		results = append(results, ResolvedOrder{Order: o, Results: rs})
	}

	// A standoff province: two or more moves bounced there and nobody got in.
	for target, n := range failedMoves {
		if n >= 2 {
			if _, taken := successfulMoves[target]; !taken {
				standoffs = append(standoffs, target)
			}
		}
	}
	sort.Strings(standoffs)

	return results, dislodged, standoffs
}

// applyUnitKey identifies a unit by power and province for resolution
// application.
type applyUnitKey struct {
	power    Power
	province string
}

// applyMoveEntry stores the result of a successful move for batch application.
type applyMoveEntry struct {
	target      string
	targetCoast Coast
	clearCoast  bool
}

// ApplyResolution updates the game state based on a movement resolution:
// moves successful units, removes dislodged units from the board, and records
// the standoff set for the retreat phase.
func ApplyResolution(gs *GameState, m *Map, res *MovementResolution) {
	dislodgedSet := make(map[applyUnitKey]bool)
	for _, d := range res.Dislodged {
		dislodgedSet[applyUnitKey{d.Unit.Power, d.DislodgedFrom}] = true
	}

	moves := make(map[applyUnitKey]applyMoveEntry)
	for _, ro := range res.Orders {
		if ro.Order.Type == OrderMove && ro.Succeeded() {
			clearCoast := ro.Order.TargetCoast == NoCoast && !m.HasCoasts(ro.Order.Target)
			moves[applyUnitKey{ro.Order.Power, ro.Order.Location}] = applyMoveEntry{
				target:      ro.Order.Target,
				targetCoast: ro.Order.TargetCoast,
				clearCoast:  clearCoast,
			}
		}
	}
	applyMoves(gs, moves, dislodgedSet, res.Dislodged, res.Standoffs)
}

// applyMoves applies move updates and removes dislodged units from the state.
func applyMoves(
	gs *GameState,
	moves map[applyUnitKey]applyMoveEntry,
	dislodgedSet map[applyUnitKey]bool,
	dislodged []DislodgedUnit,
	standoffs []string,
) {
	for i := range gs.Units {
		key := applyUnitKey{gs.Units[i].Power, gs.Units[i].Province}
		if mu, ok := moves[key]; ok {
			gs.Units[i].Province = mu.target
			if mu.targetCoast != NoCoast {
				gs.Units[i].Coast = mu.targetCoast
			} else if mu.clearCoast {
				gs.Units[i].Coast = NoCoast
			}
		}
	}

	remaining := gs.Units[:0]
	for _, u := range gs.Units {
		if !dislodgedSet[applyUnitKey{u.Power, u.Province}] {
			remaining = append(remaining, u)
		}
	}
	gs.Units = remaining
	gs.Dislodged = append([]DislodgedUnit(nil), dislodged...)
	gs.Standoffs = append([]string(nil), standoffs...)
}

// Resolver is a reusable order adjudicator that minimizes allocations.
// Allocate once with NewResolver and call Resolve repeatedly in hot loops.
// The returned resolution's slices are owned by the Resolver and overwritten
// on the next call.
type Resolver struct {
	r resolver

	res MovementResolution

	dislodgedSet map[applyUnitKey]bool
	movesMap     map[applyUnitKey]applyMoveEntry
}

// NewResolver creates a reusable resolver. capacity should be the expected
// number of orders per resolution (e.g. 34 for a full board).
func NewResolver(capacity int) *Resolver {
	rv := &Resolver{
		r: resolver{
			adjBuf: make([]adjResult, 0, capacity),
		},
		res: MovementResolution{
			Orders:    make([]ResolvedOrder, 0, capacity),
			Dislodged: make([]DislodgedUnit, 0, 4),
			Standoffs: make([]string, 0, 4),
		},
		dislodgedSet: make(map[applyUnitKey]bool, 4),
		movesMap:     make(map[applyUnitKey]applyMoveEntry, capacity),
	}
	for i := range rv.r.lookup {
		rv.r.lookup[i] = -1
	}
	return rv
}

// Resolve adjudicates orders and returns the resolution. The returned value
// is backed by internal buffers; it is valid until the next Resolve call.
func (rv *Resolver) Resolve(orders []Order, gs *GameState, m *Map) *MovementResolution {
	rv.reset(orders, gs, m)

	for i := range rv.r.adjBuf {
		rv.r.adjudicate(rv.r.adjBuf[i].provIdx)
	}

	rv.res.Orders, rv.res.Dislodged, rv.res.Standoffs =
		rv.r.buildResults(rv.res.Orders, rv.res.Dislodged, rv.res.Standoffs)
	return &rv.res
}

func (rv *Resolver) reset(orders []Order, gs *GameState, m *Map) {
	r := &rv.r
	n := len(orders)
	if cap(r.adjBuf) >= n {
		r.adjBuf = r.adjBuf[:n]
	} else {
		r.adjBuf = make([]adjResult, n)
	}
	r.orderList = orders
	r.gs = gs
	r.m = m
	r.initLookup()
}

// Apply updates the game state using the results from the most recent Resolve
// call.
func (rv *Resolver) Apply(gs *GameState, m *Map) {
	clear(rv.dislodgedSet)
	clear(rv.movesMap)

	for _, d := range rv.res.Dislodged {
		rv.dislodgedSet[applyUnitKey{d.Unit.Power, d.DislodgedFrom}] = true
	}

	for _, ro := range rv.res.Orders {
		if ro.Order.Type == OrderMove && ro.Succeeded() {
			clearCoast := ro.Order.TargetCoast == NoCoast && !m.HasCoasts(ro.Order.Target)
			rv.movesMap[applyUnitKey{ro.Order.Power, ro.Order.Location}] = applyMoveEntry{
				target:      ro.Order.Target,
				targetCoast: ro.Order.TargetCoast,
				clearCoast:  clearCoast,
			}
		}
	}
	applyMoves(gs, rv.movesMap, rv.dislodgedSet, rv.res.Dislodged, rv.res.Standoffs)
}

// HasDislodged returns true if the last Resolve call produced any dislodged
// units.
func (rv *Resolver) HasDislodged() bool {
	return len(rv.res.Dislodged) > 0
}
