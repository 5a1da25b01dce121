package daide

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmarais/backchannel/pkg/engine"
)

// Province tokens are assigned per category in sorted province-id order. The
// assignment is stable across processes because the map is immutable, and the
// representation frame hands peers the table anyway.
var (
	provinceToken map[string]Token
	tokenProvince map[Token]string
)

func init() {
	m := engine.StandardMap()
	ids := make([]string, 0, len(m.Provinces))
	for id := range m.Provinces {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	provinceToken = make(map[string]Token, len(ids))
	tokenProvince = make(map[Token]string, len(ids))
	next := make(map[byte]Token)
	for _, id := range ids {
		cat := provinceCategory(m, m.Provinces[id])
		t := Token(cat)<<8 | next[cat]
		next[cat]++
		provinceToken[id] = t
		tokenProvince[t] = id
	}
}

func provinceCategory(m *engine.Map, p *engine.Province) byte {
	bicoastal := len(p.Coasts) > 0
	switch {
	case p.Type == engine.Sea:
		return catProvSea
	case p.Type == engine.Land && p.IsSupplyCenter:
		return catProvInlandSC
	case p.Type == engine.Land:
		return catProvInland
	case bicoastal && p.IsSupplyCenter:
		return catProvBicoastalSC
	case bicoastal:
		return catProvBicoastal
	case p.IsSupplyCenter:
		return catProvCoastalSC
	default:
		return catProvCoastal
	}
}

// ProvinceToken resolves a province id to its token.
func ProvinceToken(id string) (Token, error) {
	t, ok := provinceToken[id]
	if !ok {
		return 0, fmt.Errorf("daide: unknown province %q", id)
	}
	return t, nil
}

// TokenToProvince resolves a province token to its id.
func TokenToProvince(t Token) (string, error) {
	id, ok := tokenProvince[t]
	if !ok {
		return "", fmt.Errorf("daide: token %s is not a province", t)
	}
	return id, nil
}

// Representation builds the payload of the representation frame: one 6-byte
// entry per province, token followed by the uppercased 3-letter id and a NUL.
func Representation() []byte {
	tokens := make([]Token, 0, len(tokenProvince))
	for t := range tokenProvince {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	out := make([]byte, 0, 6*len(tokens))
	for _, t := range tokens {
		name := strings.ToUpper(tokenProvince[t])
		out = append(out, byte(t>>8), byte(t), name[0], name[1], name[2], 0)
	}
	return out
}

var powerToken = map[engine.Power]Token{
	engine.Austria: AUS,
	engine.England: ENG,
	engine.France:  FRA,
	engine.Germany: GER,
	engine.Italy:   ITA,
	engine.Russia:  RUS,
	engine.Turkey:  TUR,
}

var tokenPower = map[Token]engine.Power{
	AUS: engine.Austria,
	ENG: engine.England,
	FRA: engine.France,
	GER: engine.Germany,
	ITA: engine.Italy,
	RUS: engine.Russia,
	TUR: engine.Turkey,
}

// PowerToken resolves a power to its token.
func PowerToken(p engine.Power) (Token, error) {
	t, ok := powerToken[p]
	if !ok {
		return 0, fmt.Errorf("daide: unknown power %q", p)
	}
	return t, nil
}

// TokenToPower resolves a power token.
func TokenToPower(t Token) (engine.Power, error) {
	p, ok := tokenPower[t]
	if !ok {
		return engine.Neutral, fmt.Errorf("daide: token %s is not a power", t)
	}
	return p, nil
}

var coastToken = map[engine.Coast]Token{
	engine.NorthCoast: NCS,
	engine.EastCoast:  ECS,
	engine.SouthCoast: SCS,
	engine.WestCoast:  WCS,
}

var tokenCoast = map[Token]engine.Coast{
	NCS: engine.NorthCoast,
	ECS: engine.EastCoast,
	SCS: engine.SouthCoast,
	WCS: engine.WestCoast,
}

func unitToken(ut engine.UnitType) Token {
	if ut == engine.Fleet {
		return FLT
	}
	return AMY
}

func tokenUnit(t Token) (engine.UnitType, error) {
	switch t {
	case AMY:
		return engine.Army, nil
	case FLT:
		return engine.Fleet, nil
	default:
		return 0, fmt.Errorf("daide: token %s is not a unit type", t)
	}
}

// EncodeTurn renders a phase as the (season year) group content. The retreat
// seasons have their own tokens; the adjustment phase is the winter turn.
func EncodeTurn(year int, season engine.Season, pt engine.PhaseType) ([]Token, error) {
	var s Token
	switch {
	case season == engine.Spring && pt == engine.PhaseMovement:
		s = SPR
	case season == engine.Spring && pt == engine.PhaseRetreat:
		s = SUM
	case season == engine.Fall && pt == engine.PhaseMovement:
		s = FAL
	case season == engine.Fall && pt == engine.PhaseRetreat:
		s = AUT
	case pt == engine.PhaseAdjustment:
		s = WIN
	default:
		return nil, fmt.Errorf("daide: no turn for %s %s", season, pt)
	}
	y, err := EncodeInt(year)
	if err != nil {
		return nil, err
	}
	return []Token{s, y}, nil
}

// DecodeTurn parses a (season year) group content back into phase parts.
func DecodeTurn(tokens []Token) (year int, season engine.Season, pt engine.PhaseType, err error) {
	if len(tokens) != 2 || !tokens[1].IsInt() {
		return 0, "", "", fmt.Errorf("daide: malformed turn")
	}
	year = tokens[1].Int()
	switch tokens[0] {
	case SPR:
		return year, engine.Spring, engine.PhaseMovement, nil
	case SUM:
		return year, engine.Spring, engine.PhaseRetreat, nil
	case FAL:
		return year, engine.Fall, engine.PhaseMovement, nil
	case AUT:
		return year, engine.Fall, engine.PhaseRetreat, nil
	case WIN:
		return year, engine.Winter, engine.PhaseAdjustment, nil
	default:
		return 0, "", "", fmt.Errorf("daide: unknown season token %s", tokens[0])
	}
}

var resultToken = map[engine.OrderResult]Token{
	engine.ResultOK:        SUC,
	engine.ResultBounce:    BNC,
	engine.ResultCut:       CUT,
	engine.ResultDisrupted: DSR,
	engine.ResultDislodged: RET,
	engine.ResultNoConvoy:  NSO,
	engine.ResultVoid:      NVR,
}

var tokenResult = map[Token]engine.OrderResult{
	SUC: engine.ResultOK,
	BNC: engine.ResultBounce,
	CUT: engine.ResultCut,
	DSR: engine.ResultDisrupted,
	RET: engine.ResultDislodged,
	NSO: engine.ResultNoConvoy,
	NVR: engine.ResultVoid,
}
