// Package daide implements the binary token protocol spoken by Diplomacy
// bots: 16-bit tokens grouped by category in the high byte, carried in
// length-prefixed frames over TCP. The codec maps bidirectionally onto the
// engine's order and state model; the representation message tells peers the
// province token table, so the assignment only has to be self-consistent.
package daide

import (
	"fmt"
	"strings"
)

// Token is one 16-bit protocol token, big-endian on the wire. Values below
// 0x4000 are 14-bit two's-complement integers; the high byte of everything
// else names a category.
type Token uint16

// Category bytes.
const (
	catBrackets  = 0x40
	catPower     = 0x41
	catUnit      = 0x42
	catOrder     = 0x43
	catOrderNote = 0x44
	catResult    = 0x45
	catCoast     = 0x46
	catPhase     = 0x47
	catCommand   = 0x48
	catParameter = 0x49
	catPress     = 0x4A
	catText      = 0x4B

	// Province categories, split by terrain and supply-centre status.
	catProvInland      = 0x50
	catProvInlandSC    = 0x51
	catProvSea         = 0x52
	catProvCoastal     = 0x54
	catProvCoastalSC   = 0x55
	catProvBicoastal   = 0x56
	catProvBicoastalSC = 0x57
)

// Brackets.
const (
	BRA Token = 0x4000
	KET Token = 0x4001
)

// Powers, in the engine's standard order.
const (
	AUS Token = 0x4100 + iota
	ENG
	FRA
	GER
	ITA
	RUS
	TUR
)

// Unit types.
const (
	AMY Token = 0x4200
	FLT Token = 0x4201
)

// Order tokens.
const (
	CTO Token = 0x4320 + iota // move via convoy to
	CVY                       // convoy
	HLD                       // hold
	MTO                       // move to
	SUP                       // support
	VIA                       // convoy path marker
	DSB Token = 0x4340        // disband (retreat phase)
	RTO Token = 0x4341        // retreat to
	BLD Token = 0x4380        // build
	REM Token = 0x4381        // remove (adjustment disband)
	WVE Token = 0x4382        // waive
)

// Order notes (replies to submissions).
const (
	MBV Token = 0x4400 // order accepted
	NYU Token = 0x4412 // not your unit
	NVR Token = 0x4411 // order not valid
)

// Results.
const (
	SUC Token = 0x4500 + iota // succeeded
	BNC                       // bounced
	CUT                       // support cut
	DSR                       // convoy disrupted
	FLD                       // dislodged
	NSO                       // no such order / no convoy
	RET                       // must retreat
)

// Coasts.
const (
	NCS Token = 0x4600 // north
	ECS Token = 0x4604 // east
	SCS Token = 0x4608 // south
	WCS Token = 0x460C // west
)

// Turn seasons.
const (
	SPR Token = 0x4700 + iota // spring movement
	SUM                       // spring retreat
	FAL                       // fall movement
	AUT                       // fall retreat
	WIN                       // adjustment
)

// Commands.
const (
	CCD Token = 0x4800 + iota // power in civil disorder
	DRW                       // draw (vote or result)
	FRM                       // press from
	GOF                       // go flag (process when ready)
	HLO                       // hello: power assignment
	HST                       // history request
	HUH                       // unparseable input
	IAM                       // reconnect as power
	LOD                       // load game
	MAP                       // map name
	MDF                       // map definition
	MIS                       // missing orders
	NME                       // client name/version
	NOT                       // negation wrapper
	NOW                       // current position
	OBS                       // observer
	OFF                       // sign off
	ORD                       // order result
	OUT                       // power eliminated
	PRN                       // parenthesis error
	REJ                       // rejection wrapper
	SCO                       // supply centre ownership
	SLO                       // solo win
	SND                       // send press
	SUB                       // submit orders
	SVE                       // save game
	THX                       // order submission reply
	TME                       // time until deadline
	YES                       // acceptance wrapper
	ADM                       // admin message
)

// Parameters.
const (
	LVL Token = 0x4905 // press level
	MRT Token = 0x4909 // must-retreat options
	UNO Token = 0x490C // unowned
)

var tokenNames = map[Token]string{
	BRA: "(", KET: ")",
	AUS: "AUS", ENG: "ENG", FRA: "FRA", GER: "GER", ITA: "ITA", RUS: "RUS", TUR: "TUR",
	AMY: "AMY", FLT: "FLT",
	CTO: "CTO", CVY: "CVY", HLD: "HLD", MTO: "MTO", SUP: "SUP", VIA: "VIA",
	DSB: "DSB", RTO: "RTO", BLD: "BLD", REM: "REM", WVE: "WVE",
	MBV: "MBV", NYU: "NYU", NVR: "NVR",
	SUC: "SUC", BNC: "BNC", CUT: "CUT", DSR: "DSR", FLD: "FLD", NSO: "NSO", RET: "RET",
	NCS: "NCS", ECS: "ECS", SCS: "SCS", WCS: "WCS",
	SPR: "SPR", SUM: "SUM", FAL: "FAL", AUT: "AUT", WIN: "WIN",
	CCD: "CCD", DRW: "DRW", FRM: "FRM", GOF: "GOF", HLO: "HLO", HST: "HST",
	HUH: "HUH", IAM: "IAM", LOD: "LOD", MAP: "MAP", MDF: "MDF", MIS: "MIS",
	NME: "NME", NOT: "NOT", NOW: "NOW", OBS: "OBS", OFF: "OFF", ORD: "ORD",
	OUT: "OUT", PRN: "PRN", REJ: "REJ", SCO: "SCO", SLO: "SLO", SND: "SND",
	SUB: "SUB", SVE: "SVE", THX: "THX", TME: "TME", YES: "YES", ADM: "ADM",
	LVL: "LVL", MRT: "MRT", UNO: "UNO",
}

// IsInt reports whether the token is a 14-bit integer.
func (t Token) IsInt() bool { return t&0xC000 == 0 }

// IsText reports whether the token carries one ASCII character.
func (t Token) IsText() bool { return t>>8 == catText }

// isProvince reports whether the token's category is a province category.
func (t Token) isProvince() bool {
	c := byte(t >> 8)
	return c >= catProvInland && c <= catProvBicoastalSC
}

// EncodeInt builds an integer token. Values must fit in 14 bits signed.
func EncodeInt(n int) (Token, error) {
	if n < -8192 || n > 8191 {
		return 0, fmt.Errorf("daide: integer %d out of token range", n)
	}
	return Token(uint16(n) & 0x3FFF), nil
}

// Int decodes a 14-bit two's-complement integer token.
func (t Token) Int() int {
	v := int(t & 0x3FFF)
	if v >= 0x2000 {
		v -= 0x4000
	}
	return v
}

// EncodeText turns an ASCII string into text tokens. Non-ASCII bytes are
// replaced with '?'.
func EncodeText(s string) []Token {
	out := make([]Token, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b > 0x7F {
			b = '?'
		}
		out = append(out, Token(catText)<<8|Token(b))
	}
	return out
}

// DecodeText collects a run of text tokens back into a string.
func DecodeText(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.IsText() {
			b.WriteByte(byte(t))
		}
	}
	return b.String()
}

// String renders a token for logs and HUH replies.
func (t Token) String() string {
	if t.IsInt() {
		return fmt.Sprintf("%d", t.Int())
	}
	if t.IsText() {
		return fmt.Sprintf("'%c'", byte(t))
	}
	if name, ok := tokenNames[t]; ok {
		return name
	}
	if t.isProvince() {
		if id, ok := tokenProvince[t]; ok {
			return strings.ToUpper(id)
		}
	}
	return fmt.Sprintf("0x%04X", uint16(t))
}
