package engine

import (
	"fmt"
	"strconv"
)

// PhaseName is the short phase string used on the wire and in history:
// <S|F|W><YYYY><M|R|A>, plus the two pseudo-phases FORMING and COMPLETED.
// Lexicographic order of PhaseName does NOT match game order; use Compare.
type PhaseName string

const (
	PhaseForming   PhaseName = "FORMING"
	PhaseCompleted PhaseName = "COMPLETED"
)

// Season represents a game season.
type Season string

const (
	Spring Season = "spring"
	Fall   Season = "fall"
	Winter Season = "winter"
)

// PhaseType represents the kind of orders a phase accepts.
type PhaseType string

const (
	PhaseMovement   PhaseType = "movement"
	PhaseRetreat    PhaseType = "retreat"
	PhaseAdjustment PhaseType = "adjustment"
)

var seasonChar = map[Season]byte{Spring: 'S', Fall: 'F', Winter: 'W'}
var charSeason = map[byte]Season{'S': Spring, 'F': Fall, 'W': Winter}
var phaseTypeChar = map[PhaseType]byte{PhaseMovement: 'M', PhaseRetreat: 'R', PhaseAdjustment: 'A'}
var charPhaseType = map[byte]PhaseType{'M': PhaseMovement, 'R': PhaseRetreat, 'A': PhaseAdjustment}

// seasonRank orders seasons within a year: S < F < W.
var seasonRank = map[Season]int{Spring: 0, Fall: 1, Winter: 2}

// phaseTypeRank orders phase types within a season: M < R < A.
var phaseTypeRank = map[PhaseType]int{PhaseMovement: 0, PhaseRetreat: 1, PhaseAdjustment: 2}

// MakePhaseName builds the short phase string for a year/season/type triple.
func MakePhaseName(year int, season Season, pt PhaseType) PhaseName {
	return PhaseName(fmt.Sprintf("%c%04d%c", seasonChar[season], year, phaseTypeChar[pt]))
}

// Parse splits a PhaseName into its components. Returns an error for
// FORMING, COMPLETED, and malformed strings.
func (p PhaseName) Parse() (year int, season Season, pt PhaseType, err error) {
	if len(p) != 6 {
		return 0, "", "", fmt.Errorf("phase: malformed %q", string(p))
	}
	season, ok := charSeason[p[0]]
	if !ok {
		return 0, "", "", fmt.Errorf("phase: bad season in %q", string(p))
	}
	pt, ok = charPhaseType[p[5]]
	if !ok {
		return 0, "", "", fmt.Errorf("phase: bad type in %q", string(p))
	}
	year, err = strconv.Atoi(string(p[1:5]))
	if err != nil {
		return 0, "", "", fmt.Errorf("phase: bad year in %q", string(p))
	}
	return year, season, pt, nil
}

// Type returns the phase type, or "" for FORMING/COMPLETED/malformed.
func (p PhaseName) Type() PhaseType {
	_, _, pt, err := p.Parse()
	if err != nil {
		return ""
	}
	return pt
}

// Compare orders two phase names by game order: FORMING before everything,
// COMPLETED after everything, otherwise year ascending, then season S<F<W,
// then type M<R<A. Returns -1, 0, or 1.
func (p PhaseName) Compare(other PhaseName) int {
	pr, or := p.rank(), other.rank()
	switch {
	case pr < or:
		return -1
	case pr > or:
		return 1
	default:
		return 0
	}
}

// rank maps a PhaseName to a totally ordered integer. FORMING and malformed
// names rank lowest, COMPLETED highest.
func (p PhaseName) rank() int {
	if p == PhaseCompleted {
		return 1 << 30
	}
	year, season, pt, err := p.Parse()
	if err != nil {
		return -1
	}
	return year*9 + seasonRank[season]*3 + phaseTypeRank[pt]
}
