package engine

import "fmt"

// OrderType represents the type of a movement-phase order.
type OrderType int

const (
	OrderHold    OrderType = iota // Unit holds position
	OrderMove                     // Unit moves to adjacent province (or via convoy)
	OrderSupport                  // Unit supports another unit's hold or move
	OrderConvoy                   // Fleet convoys army across sea
)

func (o OrderType) String() string {
	switch o {
	case OrderHold:
		return "hold"
	case OrderMove:
		return "move"
	case OrderSupport:
		return "support"
	case OrderConvoy:
		return "convoy"
	default:
		return "unknown"
	}
}

// Order represents a single movement-phase order issued to a unit.
type Order struct {
	// Unit being ordered
	UnitType UnitType `json:"unit_type"`
	Power    Power    `json:"power"`
	Location string   `json:"location"`
	Coast    Coast    `json:"coast,omitempty"`

	Type OrderType `json:"type"`

	// Target province (move, and the destination for support-move/convoy aux)
	Target      string `json:"target,omitempty"`
	TargetCoast Coast  `json:"target_coast,omitempty"`

	// ViaConvoy marks a move that must travel by convoy even when the
	// destination is directly adjacent.
	ViaConvoy bool `json:"via_convoy,omitempty"`

	// Aux fields for support and convoy:
	// For support: the province the supported unit is in.
	// For convoy: the province the convoyed army is in.
	AuxLoc string `json:"aux_loc,omitempty"`
	// For support: the destination of the supported move (empty if support-hold).
	// For convoy: the destination of the convoyed move.
	AuxTarget string `json:"aux_target,omitempty"`
	// For support: the type of the supported unit.
	AuxUnitType UnitType `json:"aux_unit_type,omitempty"`
}

// OrderResult describes the outcome of adjudicating an order. The string
// forms are used verbatim on the wire.
type OrderResult string

const (
	ResultOK        OrderResult = "OK"        // order carried out
	ResultBounce    OrderResult = "BOUNCE"    // move failed against equal or greater strength
	ResultVoid      OrderResult = "VOID"      // order was invalid; unit holds
	ResultCut       OrderResult = "CUT"       // support was cut by an attack
	ResultDislodged OrderResult = "DISLODGED" // unit was dislodged and must retreat
	ResultDisrupted OrderResult = "DISRUPTED" // convoying fleet was dislodged mid-convoy
	ResultNoConvoy  OrderResult = "NO_CONVOY" // convoyed move had no intact convoy path; unit holds
)

// ResolvedOrder pairs an order with its adjudication result set. Most orders
// resolve to a single result; a dislodged mover carries both its move result
// and DISLODGED.
type ResolvedOrder struct {
	Order   Order         `json:"order"`
	Results []OrderResult `json:"results"`
}

// Has reports whether the result set contains r.
func (ro *ResolvedOrder) Has(r OrderResult) bool {
	for _, x := range ro.Results {
		if x == r {
			return true
		}
	}
	return false
}

// Succeeded reports whether the order carried out (OK and not dislodged).
func (ro *ResolvedOrder) Succeeded() bool {
	return ro.Has(ResultOK)
}

// Describe returns a human-readable description of the order.
func (o *Order) Describe() string {
	unitStr := "A"
	if o.UnitType == Fleet {
		unitStr = "F"
	}
	loc := o.Location
	if o.Coast != NoCoast {
		loc += "/" + string(o.Coast)
	}

	switch o.Type {
	case OrderHold:
		return fmt.Sprintf("%s %s H", unitStr, loc)
	case OrderMove:
		target := o.Target
		if o.TargetCoast != NoCoast {
			target += "/" + string(o.TargetCoast)
		}
		if o.ViaConvoy {
			return fmt.Sprintf("%s %s - %s VIA", unitStr, loc, target)
		}
		return fmt.Sprintf("%s %s - %s", unitStr, loc, target)
	case OrderSupport:
		auxUnit := "A"
		if o.AuxUnitType == Fleet {
			auxUnit = "F"
		}
		if o.AuxTarget == "" {
			return fmt.Sprintf("%s %s S %s %s H", unitStr, loc, auxUnit, o.AuxLoc)
		}
		return fmt.Sprintf("%s %s S %s %s - %s", unitStr, loc, auxUnit, o.AuxLoc, o.AuxTarget)
	case OrderConvoy:
		return fmt.Sprintf("%s %s C A %s - %s", unitStr, loc, o.AuxLoc, o.AuxTarget)
	default:
		return fmt.Sprintf("%s %s ???", unitStr, loc)
	}
}
