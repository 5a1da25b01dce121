package engine

import "testing"

func TestStandardMapBasics(t *testing.T) {
	m := StandardMap()
	if len(m.Provinces) != ProvinceCount {
		t.Fatalf("expected %d provinces, got %d", ProvinceCount, len(m.Provinces))
	}
	if got := len(m.SupplyCenters()); got != 34 {
		t.Errorf("expected 34 supply centers, got %d", got)
	}
	if m.VictoryThreshold != 18 {
		t.Errorf("victory threshold should be 18, got %d", m.VictoryThreshold)
	}
	for _, p := range AllPowers() {
		if got := len(m.HomeCenters(p)); got < 3 {
			t.Errorf("%s should have at least 3 home centers, got %d", p, got)
		}
	}
}

func TestAdjacencySymmetry(t *testing.T) {
	m := StandardMap()
	for from, adjs := range m.Adjacencies {
		for _, adj := range adjs {
			found := false
			for _, back := range m.Adjacencies[adj.To] {
				if back.To == from && back.ArmyOK == adj.ArmyOK && back.FleetOK == adj.FleetOK &&
					back.FromCoast == adj.ToCoast && back.ToCoast == adj.FromCoast {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("adjacency %s -> %s has no mirror", from, adj.To)
			}
		}
	}
}

func TestSplitCoastAdjacency(t *testing.T) {
	m := StandardMap()

	if !m.Adjacent("stp", NorthCoast, "bar", NoCoast, true) {
		t.Error("fleet stp/nc should reach bar")
	}
	if m.Adjacent("stp", SouthCoast, "bar", NoCoast, true) {
		t.Error("fleet stp/sc must not reach bar")
	}
	if !m.Adjacent("stp", NoCoast, "mos", NoCoast, false) {
		t.Error("army stp should reach mos regardless of coasts")
	}

	coasts := m.FleetCoastsTo("mao", NoCoast, "spa")
	if len(coasts) != 2 {
		t.Errorf("mao should reach both coasts of spa, got %v", coasts)
	}
	coasts = m.FleetCoastsTo("gol", NoCoast, "spa")
	if len(coasts) != 1 || coasts[0] != SouthCoast {
		t.Errorf("gol should reach only spa/sc, got %v", coasts)
	}
}

func TestUnitTypeLegal(t *testing.T) {
	m := StandardMap()
	if m.UnitTypeLegal(Fleet, "mun") {
		t.Error("fleet cannot sit inland")
	}
	if m.UnitTypeLegal(Army, "nth") {
		t.Error("army cannot sit at sea")
	}
	if !m.UnitTypeLegal(Fleet, "tri") || !m.UnitTypeLegal(Army, "tri") {
		t.Error("coastal province accepts both unit types")
	}
}

func TestWaterDistance(t *testing.T) {
	m := StandardMap()
	if d := m.WaterDistance("lon", "hol"); d <= 0 {
		t.Errorf("lon and hol should be connected by sea, got %d", d)
	}
	if d := m.WaterDistance("mos", "mun"); d > 0 {
		t.Errorf("landlocked provinces have no sea route, got %d", d)
	}
}

func TestProvinceIndexRoundTrip(t *testing.T) {
	m := StandardMap()
	for id := range m.Provinces {
		idx := m.ProvinceIndex(id)
		if idx < 0 || idx >= ProvinceCount {
			t.Fatalf("index for %s out of range: %d", id, idx)
		}
		if m.ProvinceName(idx) != id {
			t.Errorf("index round trip failed for %s", id)
		}
	}
	if m.ProvinceIndex("xxx") != -1 {
		t.Error("unknown province should index to -1")
	}
}
