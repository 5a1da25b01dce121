package daide

import (
	"fmt"
	"sort"

	"github.com/tmarais/backchannel/pkg/engine"
)

// encodeLocation renders a province with an optional coast. Coasted
// locations are bracketed: (STP SCS).
func encodeLocation(prov string, coast engine.Coast) ([]Token, error) {
	pt, err := ProvinceToken(prov)
	if err != nil {
		return nil, err
	}
	if coast == engine.NoCoast {
		return []Token{pt}, nil
	}
	ct, ok := coastToken[coast]
	if !ok {
		return nil, fmt.Errorf("daide: unknown coast %q", coast)
	}
	return group(pt, ct), nil
}

// decodeLocation reads one location node: a bare province token or a
// (province coast) group.
func decodeLocation(n node) (prov string, coast engine.Coast, err error) {
	if n.group == nil {
		prov, err = TokenToProvince(n.tok)
		return prov, engine.NoCoast, err
	}
	if len(n.group) != 2 || n.group[0].group != nil || n.group[1].group != nil {
		return "", "", fmt.Errorf("daide: malformed coasted location")
	}
	prov, err = TokenToProvince(n.group[0].tok)
	if err != nil {
		return "", "", err
	}
	coast, ok := tokenCoast[n.group[1].tok]
	if !ok {
		return "", "", fmt.Errorf("daide: token %s is not a coast", n.group[1].tok)
	}
	return prov, coast, nil
}

// encodeUnit renders a unit group's content: power, type, location.
func encodeUnit(power engine.Power, ut engine.UnitType, prov string, coast engine.Coast) ([]Token, error) {
	pw, err := PowerToken(power)
	if err != nil {
		return nil, err
	}
	loc, err := encodeLocation(prov, coast)
	if err != nil {
		return nil, err
	}
	out := []Token{pw, unitToken(ut)}
	return append(out, loc...), nil
}

// decodeUnit reads a unit group's nodes.
func decodeUnit(nodes []node) (power engine.Power, ut engine.UnitType, prov string, coast engine.Coast, err error) {
	if len(nodes) != 3 || nodes[0].group != nil || nodes[1].group != nil {
		return "", 0, "", "", fmt.Errorf("daide: malformed unit")
	}
	power, err = TokenToPower(nodes[0].tok)
	if err != nil {
		return "", 0, "", "", err
	}
	ut, err = tokenUnit(nodes[1].tok)
	if err != nil {
		return "", 0, "", "", err
	}
	prov, coast, err = decodeLocation(nodes[2])
	return power, ut, prov, coast, err
}

// auxUnit resolves the unit standing in a province for support and convoy
// clauses. The board is authoritative; the fallback is an army of the
// ordering power so encoding stays total.
func auxUnit(gs *engine.GameState, prov string, fallback engine.Power) (engine.Power, engine.UnitType, engine.Coast) {
	if gs != nil {
		if u := gs.UnitAt(prov); u != nil {
			return u.Power, u.Type, u.Coast
		}
	}
	return fallback, engine.Army, engine.NoCoast
}

// EncodeOrder renders one order as its token sequence (without a wrapping
// group). The game state resolves the owner of supported and convoyed units.
func EncodeOrder(p engine.ParsedOrder, power engine.Power, gs *engine.GameState) ([]Token, error) {
	if p.Kind == engine.KindWaive {
		pw, err := PowerToken(power)
		if err != nil {
			return nil, err
		}
		return []Token{pw, WVE}, nil
	}

	unit, err := encodeUnit(power, p.UnitType, p.Location, p.Coast)
	if err != nil {
		return nil, err
	}
	out := group(unit...)

	switch p.Kind {
	case engine.KindHold:
		return append(out, HLD), nil

	case engine.KindMove:
		dest, err := encodeLocation(p.Target, p.TargetCoast)
		if err != nil {
			return nil, err
		}
		if p.ViaConvoy {
			// The convoy path is the adjudicator's problem; an empty VIA
			// group only marks the intent.
			out = append(out, CTO)
			out = append(out, dest...)
			out = append(out, VIA)
			return append(out, group()...), nil
		}
		out = append(out, MTO)
		return append(out, dest...), nil

	case engine.KindSupportHold, engine.KindSupportMove, engine.KindConvoy:
		auxPower, auxType, auxCoast := auxUnit(gs, p.AuxLocation, power)
		if p.AuxUnitType == engine.Fleet || p.Kind == engine.KindConvoy {
			auxType = p.AuxUnitType
		}
		aux, err := encodeUnit(auxPower, auxType, p.AuxLocation, auxCoast)
		if err != nil {
			return nil, err
		}
		switch p.Kind {
		case engine.KindSupportHold:
			out = append(out, SUP)
			return append(out, group(aux...)...), nil
		case engine.KindSupportMove:
			out = append(out, SUP)
			out = append(out, group(aux...)...)
			out = append(out, MTO)
			target, err := ProvinceToken(p.AuxTarget)
			if err != nil {
				return nil, err
			}
			return append(out, target), nil
		default: // KindConvoy
			out = append(out, CVY)
			out = append(out, group(aux...)...)
			out = append(out, CTO)
			target, err := ProvinceToken(p.AuxTarget)
			if err != nil {
				return nil, err
			}
			return append(out, target), nil
		}

	case engine.KindRetreat:
		dest, err := encodeLocation(p.Target, p.TargetCoast)
		if err != nil {
			return nil, err
		}
		out = append(out, RTO)
		return append(out, dest...), nil

	case engine.KindDisband:
		return append(out, DSB), nil

	case engine.KindBuild:
		return append(out, BLD), nil

	default:
		return nil, fmt.Errorf("daide: cannot encode order kind %d", p.Kind)
	}
}

// DecodeOrder parses one bracketed order's nodes back into a ParsedOrder and
// the ordering power. DSB maps to the shared disband kind; the phase decides
// whether it is a retreat disband or a removal.
func DecodeOrder(nodes []node) (engine.ParsedOrder, engine.Power, error) {
	var p engine.ParsedOrder

	// Waive: power WVE, no unit group.
	if len(nodes) == 2 && nodes[0].group == nil && nodes[1].group == nil && nodes[1].tok == WVE {
		power, err := TokenToPower(nodes[0].tok)
		if err != nil {
			return p, "", err
		}
		p.Kind = engine.KindWaive
		return p, power, nil
	}

	if len(nodes) < 2 || nodes[0].group == nil {
		return p, "", fmt.Errorf("daide: malformed order")
	}
	power, ut, prov, coast, err := decodeUnit(nodes[0].group)
	if err != nil {
		return p, "", err
	}
	p.UnitType = ut
	p.Location = prov
	p.Coast = coast

	op := nodes[1]
	if op.group != nil {
		return p, "", fmt.Errorf("daide: expected an order token")
	}
	switch op.tok {
	case HLD:
		p.Kind = engine.KindHold
		return p, power, nil

	case MTO, CTO:
		if len(nodes) < 3 {
			return p, "", fmt.Errorf("daide: move without destination")
		}
		p.Kind = engine.KindMove
		p.Target, p.TargetCoast, err = decodeLocation(nodes[2])
		if err != nil {
			return p, "", err
		}
		p.ViaConvoy = op.tok == CTO
		return p, power, nil

	case SUP:
		if len(nodes) < 3 || nodes[2].group == nil {
			return p, "", fmt.Errorf("daide: support without a unit")
		}
		_, auxType, auxProv, _, err := decodeUnit(nodes[2].group)
		if err != nil {
			return p, "", err
		}
		p.AuxUnitType = auxType
		p.AuxLocation = auxProv
		if len(nodes) == 3 {
			p.Kind = engine.KindSupportHold
			return p, power, nil
		}
		if len(nodes) != 5 || nodes[3].group != nil || nodes[3].tok != MTO {
			return p, "", fmt.Errorf("daide: malformed support")
		}
		p.Kind = engine.KindSupportMove
		p.AuxTarget, _, err = decodeLocation(nodes[4])
		return p, power, err

	case CVY:
		if len(nodes) != 5 || nodes[2].group == nil || nodes[3].group != nil || nodes[3].tok != CTO {
			return p, "", fmt.Errorf("daide: malformed convoy")
		}
		_, auxType, auxProv, _, err := decodeUnit(nodes[2].group)
		if err != nil {
			return p, "", err
		}
		p.Kind = engine.KindConvoy
		p.AuxUnitType = auxType
		p.AuxLocation = auxProv
		p.AuxTarget, _, err = decodeLocation(nodes[4])
		return p, power, err

	case RTO:
		if len(nodes) < 3 {
			return p, "", fmt.Errorf("daide: retreat without destination")
		}
		p.Kind = engine.KindRetreat
		p.Target, p.TargetCoast, err = decodeLocation(nodes[2])
		return p, power, err

	case DSB, REM:
		p.Kind = engine.KindDisband
		return p, power, nil

	case BLD:
		p.Kind = engine.KindBuild
		return p, power, nil

	default:
		return p, "", fmt.Errorf("daide: unknown order token %s", op.tok)
	}
}

// Message builders.

// Hello builds HLO (power) (passcode) ((LVL n)).
func Hello(power engine.Power, passcode, level int) ([]Token, error) {
	pw, err := PowerToken(power)
	if err != nil {
		return nil, err
	}
	pc, err := EncodeInt(passcode)
	if err != nil {
		return nil, err
	}
	lv, err := EncodeInt(level)
	if err != nil {
		return nil, err
	}
	out := []Token{HLO}
	out = append(out, group(pw)...)
	out = append(out, group(pc)...)
	inner := group(LVL, lv)
	out = append(out, BRA)
	out = append(out, inner...)
	out = append(out, KET)
	return out, nil
}

// MapName builds MAP ('name').
func MapName(name string) []Token {
	out := []Token{MAP, BRA}
	out = append(out, EncodeText(name)...)
	return append(out, KET)
}

// Now renders the position: NOW (turn) (unit)... with dislodged units
// carrying their retreat options as a MRT clause.
func Now(gs *engine.GameState, m *engine.Map) ([]Token, error) {
	turn, err := EncodeTurn(gs.Year, gs.Season, gs.Phase)
	if err != nil {
		return nil, err
	}
	out := []Token{NOW}
	out = append(out, group(turn...)...)

	for _, u := range gs.Units {
		unit, err := encodeUnit(u.Power, u.Type, u.Province, u.Coast)
		if err != nil {
			return nil, err
		}
		out = append(out, group(unit...)...)
	}
	for _, d := range gs.Dislodged {
		unit, err := encodeUnit(d.Unit.Power, d.Unit.Type, d.Unit.Province, d.Unit.Coast)
		if err != nil {
			return nil, err
		}
		var opts []Token
		for _, prov := range engine.RetreatOptions(d, gs, m) {
			pt, err := ProvinceToken(prov)
			if err != nil {
				return nil, err
			}
			opts = append(opts, pt)
		}
		entry := append([]Token{}, unit...)
		entry = append(entry, MRT)
		entry = append(entry, group(opts...)...)
		out = append(out, group(entry...)...)
	}
	return out, nil
}

// DecodeNow parses a NOW message into the turn and the on-board units.
// Dislodged entries (MRT clauses) are returned separately.
func DecodeNow(tokens []Token) (year int, season engine.Season, pt engine.PhaseType, units, dislodged []engine.Unit, err error) {
	nodes, err := parseGroups(tokens)
	if err != nil {
		return 0, "", "", nil, nil, err
	}
	if len(nodes) < 2 || nodes[0].group != nil || nodes[0].tok != NOW || nodes[1].group == nil {
		return 0, "", "", nil, nil, fmt.Errorf("daide: not a NOW message")
	}
	year, season, pt, err = DecodeTurn(flatten(nodes[1].group))
	if err != nil {
		return 0, "", "", nil, nil, err
	}
	for _, n := range nodes[2:] {
		if n.group == nil {
			return 0, "", "", nil, nil, fmt.Errorf("daide: stray token %s in NOW", n.tok)
		}
		entry := n.group
		mrt := false
		for i, inner := range entry {
			if inner.group == nil && inner.tok == MRT {
				entry = entry[:i]
				mrt = true
				break
			}
		}
		power, ut, prov, coast, err := decodeUnit(entry)
		if err != nil {
			return 0, "", "", nil, nil, err
		}
		u := engine.Unit{Power: power, Type: ut, Province: prov, Coast: coast}
		if mrt {
			dislodged = append(dislodged, u)
		} else {
			units = append(units, u)
		}
	}
	return year, season, pt, units, dislodged, nil
}

// Sco renders centre ownership: SCO (power centre...)... (UNO centre...).
func Sco(gs *engine.GameState) ([]Token, error) {
	out := []Token{SCO}
	byOwner := make(map[engine.Power][]string)
	for prov, owner := range gs.SupplyCenters {
		byOwner[owner] = append(byOwner[owner], prov)
	}
	appendGroup := func(head Token, provs []string) error {
		entry := []Token{head}
		sort.Strings(provs)
		for _, prov := range provs {
			pt, err := ProvinceToken(prov)
			if err != nil {
				return err
			}
			entry = append(entry, pt)
		}
		out = append(out, group(entry...)...)
		return nil
	}
	for _, p := range engine.AllPowers() {
		if len(byOwner[p]) == 0 {
			continue
		}
		pw, err := PowerToken(p)
		if err != nil {
			return nil, err
		}
		if err := appendGroup(pw, byOwner[p]); err != nil {
			return nil, err
		}
	}
	if len(byOwner[engine.Neutral]) > 0 {
		if err := appendGroup(UNO, byOwner[engine.Neutral]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeSco parses a SCO message into centre ownership.
func DecodeSco(tokens []Token) (map[string]engine.Power, error) {
	nodes, err := parseGroups(tokens)
	if err != nil {
		return nil, err
	}
	if len(nodes) < 1 || nodes[0].group != nil || nodes[0].tok != SCO {
		return nil, fmt.Errorf("daide: not a SCO message")
	}
	owners := make(map[string]engine.Power)
	for _, n := range nodes[1:] {
		if n.group == nil || len(n.group) < 1 {
			return nil, fmt.Errorf("daide: malformed SCO entry")
		}
		owner := engine.Neutral
		if n.group[0].tok != UNO {
			owner, err = TokenToPower(n.group[0].tok)
			if err != nil {
				return nil, err
			}
		}
		for _, pn := range n.group[1:] {
			prov, err := TokenToProvince(pn.tok)
			if err != nil {
				return nil, err
			}
			owners[prov] = owner
		}
	}
	return owners, nil
}

// Ord renders one adjudicated order: ORD (turn) (order) (result...).
func Ord(year int, season engine.Season, pt engine.PhaseType,
	order engine.ParsedOrder, power engine.Power, gs *engine.GameState,
	results []engine.OrderResult) ([]Token, error) {

	turn, err := EncodeTurn(year, season, pt)
	if err != nil {
		return nil, err
	}
	ord, err := EncodeOrder(order, power, gs)
	if err != nil {
		return nil, err
	}
	var res []Token
	for _, r := range results {
		t, ok := resultToken[r]
		if !ok {
			return nil, fmt.Errorf("daide: no token for result %s", r)
		}
		res = append(res, t)
	}
	out := []Token{ORD}
	out = append(out, group(turn...)...)
	out = append(out, group(ord...)...)
	out = append(out, group(res...)...)
	return out, nil
}

// Sub renders SUB (order)....
func Sub(orders []engine.ParsedOrder, power engine.Power, gs *engine.GameState) ([]Token, error) {
	out := []Token{SUB}
	for _, o := range orders {
		ord, err := EncodeOrder(o, power, gs)
		if err != nil {
			return nil, err
		}
		out = append(out, group(ord...)...)
	}
	return out, nil
}

// DecodeSub parses a SUB message into orders plus the power each order names.
func DecodeSub(tokens []Token) ([]engine.ParsedOrder, []engine.Power, error) {
	nodes, err := parseGroups(tokens)
	if err != nil {
		return nil, nil, err
	}
	if len(nodes) < 1 || nodes[0].group != nil || nodes[0].tok != SUB {
		return nil, nil, fmt.Errorf("daide: not a SUB message")
	}
	var orders []engine.ParsedOrder
	var powers []engine.Power
	for _, n := range nodes[1:] {
		if n.group == nil {
			return nil, nil, fmt.Errorf("daide: stray token %s in SUB", n.tok)
		}
		o, p, err := DecodeOrder(n.group)
		if err != nil {
			return nil, nil, err
		}
		orders = append(orders, o)
		powers = append(powers, p)
	}
	return orders, powers, nil
}

// Missing renders MIS (unit)... for units without orders, or MIS (n) during
// adjustments.
func Missing(units []engine.Unit, pending int) ([]Token, error) {
	out := []Token{MIS}
	for _, u := range units {
		unit, err := encodeUnit(u.Power, u.Type, u.Province, u.Coast)
		if err != nil {
			return nil, err
		}
		out = append(out, group(unit...)...)
	}
	if pending != 0 {
		n, err := EncodeInt(pending)
		if err != nil {
			return nil, err
		}
		out = append(out, group(n)...)
	}
	return out, nil
}

// TimeMessage renders TME (seconds).
func TimeMessage(seconds int) ([]Token, error) {
	n, err := EncodeInt(seconds)
	if err != nil {
		return nil, err
	}
	out := []Token{TME}
	return append(out, group(n)...), nil
}

// Wrap builds YES/REJ/NOT/HUH replies around an inner message.
func Wrap(verb Token, inner []Token) []Token {
	out := []Token{verb}
	return append(out, group(inner...)...)
}

// Press renders FRM (from) (to...) (text) or, for submissions,
// SND (to...) (text).
func Press(verb Token, from engine.Power, to []engine.Power, body string) ([]Token, error) {
	out := []Token{verb}
	if verb == FRM {
		pw, err := PowerToken(from)
		if err != nil {
			return nil, err
		}
		out = append(out, group(pw)...)
	}
	var rcpt []Token
	for _, p := range to {
		pw, err := PowerToken(p)
		if err != nil {
			return nil, err
		}
		rcpt = append(rcpt, pw)
	}
	out = append(out, group(rcpt...)...)
	out = append(out, group(EncodeText(body)...)...)
	return out, nil
}

// DecodePress parses an FRM or SND message.
func DecodePress(tokens []Token) (from engine.Power, to []engine.Power, body string, err error) {
	nodes, err := parseGroups(tokens)
	if err != nil {
		return "", nil, "", err
	}
	if len(nodes) < 3 || nodes[0].group != nil {
		return "", nil, "", fmt.Errorf("daide: not a press message")
	}
	idx := 1
	switch nodes[0].tok {
	case FRM:
		if len(nodes) != 4 || nodes[1].group == nil || len(nodes[1].group) != 1 {
			return "", nil, "", fmt.Errorf("daide: malformed FRM")
		}
		from, err = TokenToPower(nodes[1].group[0].tok)
		if err != nil {
			return "", nil, "", err
		}
		idx = 2
	case SND:
	default:
		return "", nil, "", fmt.Errorf("daide: not a press message")
	}
	if nodes[idx].group == nil || nodes[idx+1].group == nil {
		return "", nil, "", fmt.Errorf("daide: malformed press")
	}
	for _, n := range nodes[idx].group {
		p, err := TokenToPower(n.tok)
		if err != nil {
			return "", nil, "", err
		}
		to = append(to, p)
	}
	body = DecodeText(flatten(nodes[idx+1].group))
	return from, to, body, nil
}
