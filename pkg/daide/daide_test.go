package daide

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/tmarais/backchannel/pkg/engine"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := WriteFrame(&buf, FrameDiplomacy, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	typ, got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != FrameDiplomacy || !bytes.Equal(got, payload) {
		t.Errorf("got type 0x%02X payload %x", typ, got)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameFinal, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if buf.Len() != 4 {
		t.Errorf("final frame is %d bytes, want 4", buf.Len())
	}
	typ, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != FrameFinal || payload != nil {
		t.Errorf("got type 0x%02X payload %v", typ, payload)
	}
}

func TestInitialFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInitial(&buf); err != nil {
		t.Fatalf("WriteInitial: %v", err)
	}
	_, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := CheckInitial(payload); err != nil {
		t.Errorf("CheckInitial: %v", err)
	}
	if err := CheckInitial([]byte{0, 9, 0xDA, 0x10}); err == nil {
		t.Error("wrong version accepted")
	}
}

func TestIntTokens(t *testing.T) {
	for _, n := range []int{0, 1, -1, 1901, 8191, -8192} {
		tok, err := EncodeInt(n)
		if err != nil {
			t.Fatalf("EncodeInt(%d): %v", n, err)
		}
		if !tok.IsInt() {
			t.Errorf("EncodeInt(%d) = %04X, not an integer token", n, uint16(tok))
		}
		if got := tok.Int(); got != n {
			t.Errorf("round trip of %d gave %d", n, got)
		}
	}
	if _, err := EncodeInt(8192); err == nil {
		t.Error("8192 accepted, want range error")
	}
}

func TestTextTokens(t *testing.T) {
	s := "Standard v1.0"
	if got := DecodeText(EncodeText(s)); got != s {
		t.Errorf("text round trip gave %q", got)
	}
}

func TestTokensToBytesRoundTrip(t *testing.T) {
	seq := []Token{NOW, BRA, SPR, 0x076D, KET}
	got, err := BytesToTokens(TokensToBytes(seq))
	if err != nil {
		t.Fatalf("BytesToTokens: %v", err)
	}
	if !reflect.DeepEqual(got, seq) {
		t.Errorf("round trip gave %v", got)
	}
	if _, err := BytesToTokens([]byte{0x40}); err == nil {
		t.Error("odd payload accepted")
	}
}

func TestParseGroups(t *testing.T) {
	seq := []Token{HLO, BRA, FRA, KET, BRA, BRA, LVL, KET, KET}
	nodes, err := parseGroups(seq)
	if err != nil {
		t.Fatalf("parseGroups: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("got %d top-level nodes, want 3", len(nodes))
	}
	if nodes[0].group != nil || nodes[0].tok != HLO {
		t.Error("first node should be the bare HLO token")
	}
	if nodes[1].group == nil || len(nodes[1].group) != 1 {
		t.Error("second node should be a one-token group")
	}
	if nodes[2].group == nil || nodes[2].group[0].group == nil {
		t.Error("third node should be a nested group")
	}
	if got := flatten(nodes); !reflect.DeepEqual(got, seq) {
		t.Errorf("flatten gave %v", got)
	}
}

func TestParseGroupsErrors(t *testing.T) {
	for _, seq := range [][]Token{
		{BRA, FRA},      // unclosed
		{FRA, KET},      // stray close
		{BRA, KET, KET}, // extra close
	} {
		if _, err := parseGroups(seq); err == nil {
			t.Errorf("sequence %v accepted", seq)
		}
	}
}

func TestTurnRoundTrip(t *testing.T) {
	cases := []struct {
		year   int
		season engine.Season
		pt     engine.PhaseType
		want   Token
	}{
		{1901, engine.Spring, engine.PhaseMovement, SPR},
		{1901, engine.Spring, engine.PhaseRetreat, SUM},
		{1905, engine.Fall, engine.PhaseMovement, FAL},
		{1905, engine.Fall, engine.PhaseRetreat, AUT},
		{1910, engine.Winter, engine.PhaseAdjustment, WIN},
	}
	for _, c := range cases {
		toks, err := EncodeTurn(c.year, c.season, c.pt)
		if err != nil {
			t.Fatalf("EncodeTurn(%d %s %s): %v", c.year, c.season, c.pt, err)
		}
		if toks[0] != c.want {
			t.Errorf("%s %s season token = %s, want %s", c.season, c.pt, toks[0], c.want)
		}
		year, season, pt, err := DecodeTurn(toks)
		if err != nil {
			t.Fatalf("DecodeTurn: %v", err)
		}
		if year != c.year || season != c.season || pt != c.pt {
			t.Errorf("round trip gave %d %s %s", year, season, pt)
		}
	}
}

func TestProvinceTokenCategories(t *testing.T) {
	m := engine.StandardMap()
	cases := []struct {
		id  string
		cat byte
	}{
		{"bur", catProvInland},
		{"par", catProvInlandSC},
		{"mao", catProvSea},
		{"wal", catProvCoastal},
		{"bre", catProvCoastalSC},
		{"stp", catProvBicoastalSC},
	}
	for _, c := range cases {
		tok, err := ProvinceToken(c.id)
		if err != nil {
			t.Fatalf("ProvinceToken(%q): %v", c.id, err)
		}
		if byte(tok>>8) != c.cat {
			t.Errorf("%s token %04X in category %02X, want %02X", c.id, uint16(tok), byte(tok>>8), c.cat)
		}
		id, err := TokenToProvince(tok)
		if err != nil || id != c.id {
			t.Errorf("token %04X resolves to %q, %v", uint16(tok), id, err)
		}
	}
	if len(provinceToken) != len(m.Provinces) {
		t.Errorf("%d province tokens for %d provinces", len(provinceToken), len(m.Provinces))
	}
}

func TestRepresentationPayload(t *testing.T) {
	rep := Representation()
	if len(rep)%6 != 0 {
		t.Fatalf("payload length %d is not a multiple of 6", len(rep))
	}
	if len(rep)/6 != len(provinceToken) {
		t.Errorf("%d entries for %d provinces", len(rep)/6, len(provinceToken))
	}
	for i := 0; i < len(rep); i += 6 {
		tok := Token(rep[i])<<8 | Token(rep[i+1])
		if _, err := TokenToProvince(tok); err != nil {
			t.Errorf("entry %d: %v", i/6, err)
		}
		if rep[i+5] != 0 {
			t.Errorf("entry %d not NUL-terminated", i/6)
		}
	}
}

func TestOrderRoundTrip(t *testing.T) {
	gs := engine.NewInitialState(engine.StandardMap())
	cases := []struct {
		name  string
		power engine.Power
		text  string
	}{
		{"hold", engine.France, "A par H"},
		{"move", engine.France, "F bre - mao"},
		{"move with coast", engine.Russia, "F stp/sc - bot"},
		{"support hold", engine.France, "A par S A mar"},
		{"support move", engine.Germany, "A mun S A ber - kie"},
		{"convoy", engine.England, "F lon C A lvp - wal"},
		{"convoyed move", engine.England, "A lvp - wal VIA"},
	}
	for _, c := range cases {
		parsed, err := engine.ParseOrders(c.text)
		if err != nil {
			t.Fatalf("%s: ParseOrders(%q): %v", c.name, c.text, err)
		}
		toks, err := EncodeOrder(parsed[0], c.power, gs)
		if err != nil {
			t.Fatalf("%s: EncodeOrder: %v", c.name, err)
		}
		nodes, err := parseGroups(toks)
		if err != nil {
			t.Fatalf("%s: parseGroups: %v", c.name, err)
		}
		got, power, err := DecodeOrder(nodes)
		if err != nil {
			t.Fatalf("%s: DecodeOrder: %v", c.name, err)
		}
		if power != c.power {
			t.Errorf("%s: power %s, want %s", c.name, power, c.power)
		}
		if got.Kind != parsed[0].Kind || got.Location != parsed[0].Location ||
			got.Target != parsed[0].Target || got.AuxLocation != parsed[0].AuxLocation ||
			got.AuxTarget != parsed[0].AuxTarget || got.ViaConvoy != parsed[0].ViaConvoy ||
			got.Coast != parsed[0].Coast || got.TargetCoast != parsed[0].TargetCoast {
			t.Errorf("%s: round trip gave %+v, want %+v", c.name, got, parsed[0])
		}
	}
}

func TestAdjustmentOrderRoundTrip(t *testing.T) {
	cases := []struct {
		power engine.Power
		text  string
		kind  engine.ParsedOrderKind
	}{
		{engine.France, "A par B", engine.KindBuild},
		{engine.France, "F bre D", engine.KindDisband},
		{engine.France, "W", engine.KindWaive},
	}
	for _, c := range cases {
		parsed, err := engine.ParseOrders(c.text)
		if err != nil {
			t.Fatalf("ParseOrders(%q): %v", c.text, err)
		}
		toks, err := EncodeOrder(parsed[0], c.power, nil)
		if err != nil {
			t.Fatalf("EncodeOrder(%q): %v", c.text, err)
		}
		nodes, err := parseGroups(toks)
		if err != nil {
			t.Fatalf("parseGroups: %v", err)
		}
		got, power, err := DecodeOrder(nodes)
		if err != nil {
			t.Fatalf("DecodeOrder(%q): %v", c.text, err)
		}
		if got.Kind != c.kind || power != c.power {
			t.Errorf("%q decoded as kind %d power %s", c.text, got.Kind, power)
		}
	}
}

func TestSubRoundTrip(t *testing.T) {
	gs := engine.NewInitialState(engine.StandardMap())
	parsed, err := engine.ParseOrders("A par - bur\nA mar S A par - bur\nF bre - mao")
	if err != nil {
		t.Fatalf("ParseOrders: %v", err)
	}
	toks, err := Sub(parsed, engine.France, gs)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	orders, powers, err := DecodeSub(toks)
	if err != nil {
		t.Fatalf("DecodeSub: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(orders))
	}
	for i, p := range powers {
		if p != engine.France {
			t.Errorf("order %d attributed to %s", i, p)
		}
	}
	if orders[1].Kind != engine.KindSupportMove || orders[1].AuxTarget != "bur" {
		t.Errorf("support decoded as %+v", orders[1])
	}
}

func TestNowRoundTrip(t *testing.T) {
	m := engine.StandardMap()
	gs := engine.NewInitialState(m)
	toks, err := Now(gs, m)
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	year, season, pt, units, dislodged, err := DecodeNow(toks)
	if err != nil {
		t.Fatalf("DecodeNow: %v", err)
	}
	if year != 1901 || season != engine.Spring || pt != engine.PhaseMovement {
		t.Errorf("turn decoded as %d %s %s", year, season, pt)
	}
	if len(units) != len(gs.Units) {
		t.Errorf("got %d units, want %d", len(units), len(gs.Units))
	}
	if len(dislodged) != 0 {
		t.Errorf("got %d dislodged units, want 0", len(dislodged))
	}
	byProv := make(map[string]engine.Unit)
	for _, u := range units {
		byProv[u.Province] = u
	}
	stp := byProv["stp"]
	if stp.Power != engine.Russia || stp.Type != engine.Fleet || stp.Coast != engine.SouthCoast {
		t.Errorf("stp fleet decoded as %+v", stp)
	}
}

func TestNowCarriesRetreatOptions(t *testing.T) {
	m := engine.StandardMap()
	gs := engine.NewInitialState(m)
	gs.Phase = engine.PhaseRetreat
	gs.Dislodged = []engine.DislodgedUnit{{
		Unit:          engine.Unit{Type: engine.Army, Power: engine.Austria, Province: "vie"},
		DislodgedFrom: "vie",
		AttackerFrom:  "boh",
	}}
	toks, err := Now(gs, m)
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	_, _, _, units, dislodged, err := DecodeNow(toks)
	if err != nil {
		t.Fatalf("DecodeNow: %v", err)
	}
	if len(dislodged) != 1 || dislodged[0].Province != "vie" {
		t.Fatalf("dislodged units decoded as %+v", dislodged)
	}
	if len(units) != len(gs.Units) {
		t.Errorf("got %d standing units, want %d", len(units), len(gs.Units))
	}
}

func TestScoRoundTrip(t *testing.T) {
	gs := engine.NewInitialState(engine.StandardMap())
	toks, err := Sco(gs)
	if err != nil {
		t.Fatalf("Sco: %v", err)
	}
	owners, err := DecodeSco(toks)
	if err != nil {
		t.Fatalf("DecodeSco: %v", err)
	}
	if len(owners) != len(gs.SupplyCenters) {
		t.Errorf("got %d centres, want %d", len(owners), len(gs.SupplyCenters))
	}
	for prov, owner := range gs.SupplyCenters {
		if owners[prov] != owner {
			t.Errorf("%s owned by %q, want %q", prov, owners[prov], owner)
		}
	}
}

func TestOrdMessage(t *testing.T) {
	gs := engine.NewInitialState(engine.StandardMap())
	parsed, err := engine.ParseOrders("A par - bur")
	if err != nil {
		t.Fatalf("ParseOrders: %v", err)
	}
	toks, err := Ord(1901, engine.Spring, engine.PhaseMovement,
		parsed[0], engine.France, gs, []engine.OrderResult{engine.ResultOK})
	if err != nil {
		t.Fatalf("Ord: %v", err)
	}
	nodes, err := parseGroups(toks)
	if err != nil {
		t.Fatalf("parseGroups: %v", err)
	}
	if len(nodes) != 4 || nodes[0].tok != ORD {
		t.Fatalf("ORD message has shape %v", nodes)
	}
	res := nodes[3].group
	if len(res) != 1 || res[0].tok != SUC {
		t.Errorf("result group decoded as %v", res)
	}
}

func TestHelloMessage(t *testing.T) {
	toks, err := Hello(engine.France, 1234, 0)
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	nodes, err := parseGroups(toks)
	if err != nil {
		t.Fatalf("parseGroups: %v", err)
	}
	if len(nodes) != 4 || nodes[0].tok != HLO {
		t.Fatalf("HLO message has shape %v", nodes)
	}
	if nodes[1].group[0].tok != FRA {
		t.Errorf("power group is %v", nodes[1].group)
	}
	if got := nodes[2].group[0].tok.Int(); got != 1234 {
		t.Errorf("passcode decoded as %d", got)
	}
}

func TestPressRoundTrip(t *testing.T) {
	toks, err := Press(FRM, engine.France, []engine.Power{engine.Germany, engine.Italy}, "DMZ in Piedmont?")
	if err != nil {
		t.Fatalf("Press: %v", err)
	}
	from, to, body, err := DecodePress(toks)
	if err != nil {
		t.Fatalf("DecodePress: %v", err)
	}
	if from != engine.France || len(to) != 2 || to[0] != engine.Germany {
		t.Errorf("routing decoded as from %s to %v", from, to)
	}
	if body != "DMZ in Piedmont?" {
		t.Errorf("body decoded as %q", body)
	}

	toks, err = Press(SND, "", []engine.Power{engine.Austria}, "hello")
	if err != nil {
		t.Fatalf("Press(SND): %v", err)
	}
	_, to, body, err = DecodePress(toks)
	if err != nil {
		t.Fatalf("DecodePress(SND): %v", err)
	}
	if len(to) != 1 || to[0] != engine.Austria || body != "hello" {
		t.Errorf("SND decoded as to %v body %q", to, body)
	}
}

func TestMissingMessage(t *testing.T) {
	units := []engine.Unit{
		{Type: engine.Army, Power: engine.France, Province: "par"},
		{Type: engine.Fleet, Power: engine.France, Province: "bre"},
	}
	toks, err := Missing(units, 0)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	nodes, err := parseGroups(toks)
	if err != nil {
		t.Fatalf("parseGroups: %v", err)
	}
	if len(nodes) != 3 || nodes[0].tok != MIS {
		t.Errorf("MIS message has shape %v", nodes)
	}
}

func TestWrapMessages(t *testing.T) {
	inner := MapName("standard")
	toks := Wrap(YES, inner)
	nodes, err := parseGroups(toks)
	if err != nil {
		t.Fatalf("parseGroups: %v", err)
	}
	if len(nodes) != 2 || nodes[0].tok != YES || nodes[1].group == nil {
		t.Fatalf("YES message has shape %v", nodes)
	}
	if got := flatten(nodes[1].group); !reflect.DeepEqual(got, inner) {
		t.Errorf("wrapped message decoded as %v", got)
	}
}
