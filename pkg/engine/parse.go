package engine

import (
	"fmt"
	"strings"
)

// ParsedOrderKind enumerates the kinds of orders representable in the text
// notation.
type ParsedOrderKind int

const (
	KindHold        ParsedOrderKind = iota // A vie H
	KindMove                               // A bud - rum
	KindSupportHold                        // A tyr S A vie H
	KindSupportMove                        // A gal S A bud - rum
	KindConvoy                             // F mao C A bre - spa
	KindRetreat                            // A vie R boh
	KindDisband                            // F tri D  (retreat or adjustment phase)
	KindBuild                              // A vie B
	KindWaive                              // W
)

// ParsedOrder is a phase-agnostic order as written in the text notation. The
// same structure covers movement, retreat, and adjustment orders; the
// containing phase decides which conversion applies.
type ParsedOrder struct {
	Kind ParsedOrderKind

	// Unit being ordered (all kinds except KindWaive).
	UnitType UnitType
	Location string
	Coast    Coast

	// Target location (KindMove, KindRetreat).
	Target      string
	TargetCoast Coast

	// ViaConvoy marks a move written with a trailing VIA.
	ViaConvoy bool

	// Supported/convoyed unit (KindSupportHold, KindSupportMove, KindConvoy).
	AuxUnitType UnitType
	AuxLocation string
	AuxCoast    Coast

	// Destination of the supported/convoyed move.
	AuxTarget      string
	AuxTargetCoast Coast
}

// FormatOrders serializes orders to the text notation, joined by " ; ".
func FormatOrders(orders []ParsedOrder) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		parts = append(parts, formatOrder(o))
	}
	return strings.Join(parts, " ; ")
}

func formatOrder(o ParsedOrder) string {
	if o.Kind == KindWaive {
		return "W"
	}

	var b strings.Builder
	b.Grow(32)

	writeOrderUnit(&b, o.UnitType, o.Location, o.Coast)

	switch o.Kind {
	case KindHold:
		b.WriteString(" H")

	case KindMove:
		b.WriteString(" - ")
		writeOrderLocation(&b, o.Target, o.TargetCoast)
		if o.ViaConvoy {
			b.WriteString(" VIA")
		}

	case KindSupportHold:
		b.WriteString(" S ")
		writeOrderUnit(&b, o.AuxUnitType, o.AuxLocation, o.AuxCoast)
		b.WriteString(" H")

	case KindSupportMove:
		b.WriteString(" S ")
		writeOrderUnit(&b, o.AuxUnitType, o.AuxLocation, o.AuxCoast)
		b.WriteString(" - ")
		writeOrderLocation(&b, o.AuxTarget, o.AuxTargetCoast)

	case KindConvoy:
		b.WriteString(" C A ")
		writeOrderLocation(&b, o.AuxLocation, o.AuxCoast)
		b.WriteString(" - ")
		writeOrderLocation(&b, o.AuxTarget, o.AuxTargetCoast)

	case KindRetreat:
		b.WriteString(" R ")
		writeOrderLocation(&b, o.Target, o.TargetCoast)

	case KindDisband:
		b.WriteString(" D")

	case KindBuild:
		b.WriteString(" B")
	}

	return b.String()
}

func writeOrderUnit(b *strings.Builder, ut UnitType, province string, coast Coast) {
	if ut == Army {
		b.WriteByte('A')
	} else {
		b.WriteByte('F')
	}
	b.WriteByte(' ')
	writeOrderLocation(b, province, coast)
}

func writeOrderLocation(b *strings.Builder, province string, coast Coast) {
	b.WriteString(province)
	if coast != NoCoast {
		b.WriteByte('/')
		b.WriteString(string(coast))
	}
}

// ParseOrders parses a text string, with ";" or newlines separating orders,
// into ParsedOrders. Parsing is case-insensitive; provinces and coasts come
// out lowercase, keywords are recognized in any case.
func ParseOrders(s string) ([]ParsedOrder, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' })
	orders := make([]ParsedOrder, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o, err := parseOrder(part)
		if err != nil {
			return nil, fmt.Errorf("order: parsing %q: %w", part, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func parseOrder(s string) (ParsedOrder, error) {
	tokens := strings.Fields(s)
	for i, t := range tokens {
		tokens[i] = strings.ToUpper(t)
	}

	if len(tokens) == 1 && tokens[0] == "W" {
		return ParsedOrder{Kind: KindWaive}, nil
	}
	if len(tokens) < 3 {
		return ParsedOrder{}, fmt.Errorf("too few tokens")
	}

	unitType, err := parseUnitChar(tokens[0])
	if err != nil {
		return ParsedOrder{}, err
	}
	prov, coast, err := parseLocation(tokens[1])
	if err != nil {
		return ParsedOrder{}, fmt.Errorf("unit location: %w", err)
	}

	o := ParsedOrder{
		UnitType: unitType,
		Location: prov,
		Coast:    coast,
	}

	action := tokens[2]
	rest := tokens[3:]

	switch action {
	case "H":
		o.Kind = KindHold
		return o, trailing(rest)

	case "-":
		o.Kind = KindMove
		if len(rest) < 1 {
			return ParsedOrder{}, fmt.Errorf("move missing target")
		}
		o.Target, o.TargetCoast, err = parseLocation(rest[0])
		if err != nil {
			return ParsedOrder{}, fmt.Errorf("move target: %w", err)
		}
		rest = rest[1:]
		if len(rest) > 0 && rest[0] == "VIA" {
			o.ViaConvoy = true
			rest = rest[1:]
		}
		return o, trailing(rest)

	case "S":
		return parseSupport(o, rest)

	case "C":
		return parseConvoy(o, rest)

	case "R":
		o.Kind = KindRetreat
		if len(rest) < 1 {
			return ParsedOrder{}, fmt.Errorf("retreat missing target")
		}
		o.Target, o.TargetCoast, err = parseLocation(rest[0])
		if err != nil {
			return ParsedOrder{}, fmt.Errorf("retreat target: %w", err)
		}
		return o, trailing(rest[1:])

	case "D":
		o.Kind = KindDisband
		return o, trailing(rest)

	case "B":
		o.Kind = KindBuild
		return o, trailing(rest)

	default:
		return ParsedOrder{}, fmt.Errorf("unknown action %q", action)
	}
}

// trailing rejects tokens left over once an order's grammar is consumed.
func trailing(rest []string) error {
	if len(rest) > 0 {
		return fmt.Errorf("unexpected token %q", rest[0])
	}
	return nil
}

// parseSupport parses the remainder of a support order after "S".
// Formats: "A vie H" (support hold) or "A bud - rum" (support move). A bare
// "A vie" with no trailing action also reads as support hold.
func parseSupport(o ParsedOrder, tokens []string) (ParsedOrder, error) {
	if len(tokens) < 2 {
		return ParsedOrder{}, fmt.Errorf("support order too short")
	}

	auxUnit, err := parseUnitChar(tokens[0])
	if err != nil {
		return ParsedOrder{}, fmt.Errorf("supported unit: %w", err)
	}
	auxLoc, auxCoast, err := parseLocation(tokens[1])
	if err != nil {
		return ParsedOrder{}, fmt.Errorf("supported unit location: %w", err)
	}

	o.AuxUnitType = auxUnit
	o.AuxLocation = auxLoc
	o.AuxCoast = auxCoast

	if len(tokens) == 2 {
		o.Kind = KindSupportHold
		return o, nil
	}

	switch tokens[2] {
	case "H":
		o.Kind = KindSupportHold
		return o, trailing(tokens[3:])
	case "-":
		o.Kind = KindSupportMove
		if len(tokens) < 4 {
			return ParsedOrder{}, fmt.Errorf("support move missing destination")
		}
		o.AuxTarget, o.AuxTargetCoast, err = parseLocation(tokens[3])
		if err != nil {
			return ParsedOrder{}, fmt.Errorf("support move target: %w", err)
		}
		return o, trailing(tokens[4:])
	default:
		return ParsedOrder{}, fmt.Errorf("support: expected H or -, got %q", tokens[2])
	}
}

// parseConvoy parses the remainder of a convoy order after "C".
// Format: "A loc - dst".
func parseConvoy(o ParsedOrder, tokens []string) (ParsedOrder, error) {
	if len(tokens) < 4 {
		return ParsedOrder{}, fmt.Errorf("convoy order too short")
	}
	if tokens[0] != "A" {
		return ParsedOrder{}, fmt.Errorf("convoy: expected convoyed unit type A, got %q", tokens[0])
	}

	o.Kind = KindConvoy
	var err error
	o.AuxLocation, o.AuxCoast, err = parseLocation(tokens[1])
	if err != nil {
		return ParsedOrder{}, fmt.Errorf("convoy source: %w", err)
	}

	if tokens[2] != "-" {
		return ParsedOrder{}, fmt.Errorf("convoy: expected '-', got %q", tokens[2])
	}

	o.AuxTarget, o.AuxTargetCoast, err = parseLocation(tokens[3])
	if err != nil {
		return ParsedOrder{}, fmt.Errorf("convoy target: %w", err)
	}

	o.AuxUnitType = Army
	return o, trailing(tokens[4:])
}

func parseUnitChar(s string) (UnitType, error) {
	switch s {
	case "A":
		return Army, nil
	case "F":
		return Fleet, nil
	default:
		return Army, fmt.Errorf("invalid unit type %q (expected A or F)", s)
	}
}

// parseLocation parses "VIE" or "STP/NC" into a lowercase province and coast.
func parseLocation(s string) (string, Coast, error) {
	parts := strings.SplitN(strings.ToLower(s), "/", 2)
	province := parts[0]
	if len(province) != 3 {
		return "", NoCoast, fmt.Errorf("invalid province %q (must be 3 letters)", province)
	}

	coast := NoCoast
	if len(parts) == 2 {
		c := Coast(parts[1])
		switch c {
		case NorthCoast, SouthCoast, EastCoast:
			coast = c
		default:
			return "", NoCoast, fmt.Errorf("invalid coast %q", parts[1])
		}
	}

	return province, coast, nil
}

// ToOrder converts a parsed movement order to an Order for the given power.
// Only valid for hold, move, support, and convoy kinds.
func (d ParsedOrder) ToOrder(power Power) Order {
	o := Order{
		UnitType: d.UnitType,
		Power:    power,
		Location: d.Location,
		Coast:    d.Coast,
	}
	switch d.Kind {
	case KindHold:
		o.Type = OrderHold
	case KindMove:
		o.Type = OrderMove
		o.Target = d.Target
		o.TargetCoast = d.TargetCoast
		o.ViaConvoy = d.ViaConvoy
	case KindSupportHold:
		o.Type = OrderSupport
		o.AuxUnitType = d.AuxUnitType
		o.AuxLoc = d.AuxLocation
	case KindSupportMove:
		o.Type = OrderSupport
		o.AuxUnitType = d.AuxUnitType
		o.AuxLoc = d.AuxLocation
		o.AuxTarget = d.AuxTarget
	case KindConvoy:
		o.Type = OrderConvoy
		o.AuxLoc = d.AuxLocation
		o.AuxTarget = d.AuxTarget
		o.AuxUnitType = Army
	}
	return o
}

// ToRetreatOrder converts a parsed retreat or disband order to a
// RetreatOrder for the given power.
func (d ParsedOrder) ToRetreatOrder(power Power) RetreatOrder {
	o := RetreatOrder{
		UnitType: d.UnitType,
		Power:    power,
		Location: d.Location,
		Coast:    d.Coast,
	}
	switch d.Kind {
	case KindRetreat:
		o.Type = RetreatMove
		o.Target = d.Target
		o.TargetCoast = d.TargetCoast
	case KindDisband:
		o.Type = RetreatDisband
	}
	return o
}

// ToBuildOrder converts a parsed adjustment order to a BuildOrder for the
// given power.
func (d ParsedOrder) ToBuildOrder(power Power) BuildOrder {
	o := BuildOrder{
		Power:    power,
		UnitType: d.UnitType,
		Location: d.Location,
		Coast:    d.Coast,
	}
	switch d.Kind {
	case KindBuild:
		o.Type = BuildUnit
	case KindDisband:
		o.Type = DisbandUnit
	case KindWaive:
		o.Type = WaiveBuild
	}
	return o
}

// FromOrder converts a movement Order to its parsed-notation form.
func FromOrder(o Order) ParsedOrder {
	d := ParsedOrder{
		UnitType: o.UnitType,
		Location: o.Location,
		Coast:    o.Coast,
	}
	switch o.Type {
	case OrderHold:
		d.Kind = KindHold
	case OrderMove:
		d.Kind = KindMove
		d.Target = o.Target
		d.TargetCoast = o.TargetCoast
		d.ViaConvoy = o.ViaConvoy
	case OrderSupport:
		if o.AuxTarget == "" {
			d.Kind = KindSupportHold
		} else {
			d.Kind = KindSupportMove
			d.AuxTarget = o.AuxTarget
		}
		d.AuxUnitType = o.AuxUnitType
		d.AuxLocation = o.AuxLoc
	case OrderConvoy:
		d.Kind = KindConvoy
		d.AuxUnitType = Army
		d.AuxLocation = o.AuxLoc
		d.AuxTarget = o.AuxTarget
	}
	return d
}

// FromRetreatOrder converts a RetreatOrder to its parsed-notation form.
func FromRetreatOrder(o RetreatOrder) ParsedOrder {
	d := ParsedOrder{
		UnitType: o.UnitType,
		Location: o.Location,
		Coast:    o.Coast,
	}
	switch o.Type {
	case RetreatMove:
		d.Kind = KindRetreat
		d.Target = o.Target
		d.TargetCoast = o.TargetCoast
	case RetreatDisband:
		d.Kind = KindDisband
	}
	return d
}

// FromBuildOrder converts a BuildOrder to its parsed-notation form.
func FromBuildOrder(o BuildOrder) ParsedOrder {
	d := ParsedOrder{
		UnitType: o.UnitType,
		Location: o.Location,
		Coast:    o.Coast,
	}
	switch o.Type {
	case BuildUnit:
		d.Kind = KindBuild
	case DisbandUnit:
		d.Kind = KindDisband
	case WaiveBuild:
		d.Kind = KindWaive
	}
	return d
}
