package engine

import "testing"

func TestMakePhaseName(t *testing.T) {
	cases := []struct {
		year   int
		season Season
		pt     PhaseType
		want   PhaseName
	}{
		{1901, Spring, PhaseMovement, "S1901M"},
		{1901, Fall, PhaseRetreat, "F1901R"},
		{1905, Winter, PhaseAdjustment, "W1905A"},
	}
	for _, tc := range cases {
		if got := MakePhaseName(tc.year, tc.season, tc.pt); got != tc.want {
			t.Errorf("MakePhaseName(%d, %s, %s) = %s, want %s", tc.year, tc.season, tc.pt, got, tc.want)
		}
	}
}

func TestPhaseNameParse(t *testing.T) {
	year, season, pt, err := PhaseName("F1903R").Parse()
	if err != nil {
		t.Fatal(err)
	}
	if year != 1903 || season != Fall || pt != PhaseRetreat {
		t.Errorf("parsed %d %s %s", year, season, pt)
	}

	for _, bad := range []PhaseName{"FORMING", "COMPLETED", "X1901M", "S1901X", "S19O1M", "S1901"} {
		if _, _, _, err := bad.Parse(); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestPhaseNameCompare(t *testing.T) {
	ordered := []PhaseName{
		PhaseForming,
		"S1901M", "S1901R", "F1901M", "F1901R", "W1901A",
		"S1902M",
		PhaseCompleted,
	}
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].Compare(ordered[i+1]) != -1 {
			t.Errorf("%s should order before %s", ordered[i], ordered[i+1])
		}
		if ordered[i+1].Compare(ordered[i]) != 1 {
			t.Errorf("%s should order after %s", ordered[i+1], ordered[i])
		}
	}
	if PhaseName("S1901M").Compare("S1901M") != 0 {
		t.Error("equal phases should compare 0")
	}
}

func TestPhaseNameType(t *testing.T) {
	if PhaseName("W1902A").Type() != PhaseAdjustment {
		t.Error("W1902A is an adjustment phase")
	}
	if PhaseForming.Type() != "" {
		t.Error("FORMING has no phase type")
	}
}
