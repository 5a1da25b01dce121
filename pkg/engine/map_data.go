package engine

import (
	"sort"
	"sync"
)

var (
	stdMapOnce sync.Once
	stdMapInst *Map
)

// StandardMap returns the standard 75-province map with all provinces and
// adjacencies. The map is built once and cached; subsequent calls return the
// same pointer. Callers must not mutate the returned map.
func StandardMap() *Map {
	stdMapOnce.Do(func() {
		stdMapInst = buildStandardMap()
	})
	return stdMapInst
}

// provinceDef declares one province of the standard map.
type provinceDef struct {
	id     string
	name   string
	typ    ProvinceType
	sc     bool
	home   Power
	coasts []Coast
}

// link declares one undirected adjacency. Coasts apply to split-coast
// endpoints of fleet links; army links ignore coasts entirely.
type link struct {
	a, b           string
	aCoast, bCoast Coast
}

// Provinces: 14 inland + 39 coastal + 3 split-coast + 19 sea = 75.
var provinceDefs = []provinceDef{
	// Inland
	{id: "boh", name: "Bohemia", typ: Land},
	{id: "bud", name: "Budapest", typ: Land, sc: true, home: Austria},
	{id: "bur", name: "Burgundy", typ: Land},
	{id: "gal", name: "Galicia", typ: Land},
	{id: "mos", name: "Moscow", typ: Land, sc: true, home: Russia},
	{id: "mun", name: "Munich", typ: Land, sc: true, home: Germany},
	{id: "par", name: "Paris", typ: Land, sc: true, home: France},
	{id: "ruh", name: "Ruhr", typ: Land},
	{id: "ser", name: "Serbia", typ: Land, sc: true},
	{id: "sil", name: "Silesia", typ: Land},
	{id: "tyr", name: "Tyrolia", typ: Land},
	{id: "ukr", name: "Ukraine", typ: Land},
	{id: "vie", name: "Vienna", typ: Land, sc: true, home: Austria},
	{id: "war", name: "Warsaw", typ: Land, sc: true, home: Russia},

	// Coastal without split coasts
	{id: "alb", name: "Albania", typ: Coastal},
	{id: "ank", name: "Ankara", typ: Coastal, sc: true, home: Turkey},
	{id: "apu", name: "Apulia", typ: Coastal},
	{id: "arm", name: "Armenia", typ: Coastal},
	{id: "bel", name: "Belgium", typ: Coastal, sc: true},
	{id: "ber", name: "Berlin", typ: Coastal, sc: true, home: Germany},
	{id: "bre", name: "Brest", typ: Coastal, sc: true, home: France},
	{id: "cly", name: "Clyde", typ: Coastal},
	{id: "con", name: "Constantinople", typ: Coastal, sc: true, home: Turkey},
	{id: "den", name: "Denmark", typ: Coastal, sc: true},
	{id: "edi", name: "Edinburgh", typ: Coastal, sc: true, home: England},
	{id: "fin", name: "Finland", typ: Coastal},
	{id: "gas", name: "Gascony", typ: Coastal},
	{id: "gre", name: "Greece", typ: Coastal, sc: true},
	{id: "hol", name: "Holland", typ: Coastal, sc: true},
	{id: "kie", name: "Kiel", typ: Coastal, sc: true, home: Germany},
	{id: "lon", name: "London", typ: Coastal, sc: true, home: England},
	{id: "lvn", name: "Livonia", typ: Coastal},
	{id: "lvp", name: "Liverpool", typ: Coastal, sc: true, home: England},
	{id: "mar", name: "Marseilles", typ: Coastal, sc: true, home: France},
	{id: "naf", name: "North Africa", typ: Coastal},
	{id: "nap", name: "Naples", typ: Coastal, sc: true, home: Italy},
	{id: "nwy", name: "Norway", typ: Coastal, sc: true},
	{id: "pic", name: "Picardy", typ: Coastal},
	{id: "pie", name: "Piedmont", typ: Coastal},
	{id: "por", name: "Portugal", typ: Coastal, sc: true},
	{id: "pru", name: "Prussia", typ: Coastal},
	{id: "rom", name: "Rome", typ: Coastal, sc: true, home: Italy},
	{id: "rum", name: "Rumania", typ: Coastal, sc: true},
	{id: "sev", name: "Sevastopol", typ: Coastal, sc: true, home: Russia},
	{id: "smy", name: "Smyrna", typ: Coastal, sc: true, home: Turkey},
	{id: "swe", name: "Sweden", typ: Coastal, sc: true},
	{id: "syr", name: "Syria", typ: Coastal},
	{id: "tri", name: "Trieste", typ: Coastal, sc: true, home: Austria},
	{id: "tun", name: "Tunisia", typ: Coastal, sc: true},
	{id: "tus", name: "Tuscany", typ: Coastal},
	{id: "ven", name: "Venice", typ: Coastal, sc: true, home: Italy},
	{id: "wal", name: "Wales", typ: Coastal},
	{id: "yor", name: "Yorkshire", typ: Coastal},

	// Split-coast
	{id: "bul", name: "Bulgaria", typ: Coastal, sc: true, coasts: []Coast{EastCoast, SouthCoast}},
	{id: "spa", name: "Spain", typ: Coastal, sc: true, coasts: []Coast{NorthCoast, SouthCoast}},
	{id: "stp", name: "St. Petersburg", typ: Coastal, sc: true, home: Russia, coasts: []Coast{NorthCoast, SouthCoast}},

	// Sea
	{id: "adr", name: "Adriatic Sea", typ: Sea},
	{id: "aeg", name: "Aegean Sea", typ: Sea},
	{id: "bal", name: "Baltic Sea", typ: Sea},
	{id: "bar", name: "Barents Sea", typ: Sea},
	{id: "bla", name: "Black Sea", typ: Sea},
	{id: "bot", name: "Gulf of Bothnia", typ: Sea},
	{id: "eas", name: "Eastern Mediterranean", typ: Sea},
	{id: "eng", name: "English Channel", typ: Sea},
	{id: "gol", name: "Gulf of Lyon", typ: Sea},
	{id: "hel", name: "Heligoland Bight", typ: Sea},
	{id: "ion", name: "Ionian Sea", typ: Sea},
	{id: "iri", name: "Irish Sea", typ: Sea},
	{id: "mao", name: "Mid-Atlantic Ocean", typ: Sea},
	{id: "nao", name: "North Atlantic Ocean", typ: Sea},
	{id: "nrg", name: "Norwegian Sea", typ: Sea},
	{id: "nth", name: "North Sea", typ: Sea},
	{id: "ska", name: "Skagerrak", typ: Sea},
	{id: "tys", name: "Tyrrhenian Sea", typ: Sea},
	{id: "wes", name: "Western Mediterranean", typ: Sea},
}

// fleetLinks are fleet-only adjacencies: sea<->sea, sea<->coastal, and
// coastal<->coastal pairs that share only a sea border. Coast fields name the
// specific coast for split-coast endpoints.
var fleetLinks = []link{
	// Sea to sea
	{a: "adr", b: "ion"},
	{a: "aeg", b: "eas"},
	{a: "aeg", b: "ion"},
	{a: "bal", b: "bot"},
	{a: "eng", b: "iri"},
	{a: "eng", b: "mao"},
	{a: "eng", b: "nth"},
	{a: "gol", b: "tys"},
	{a: "gol", b: "wes"},
	{a: "hel", b: "nth"},
	{a: "ion", b: "eas"},
	{a: "ion", b: "tys"},
	{a: "iri", b: "mao"},
	{a: "iri", b: "nao"},
	{a: "mao", b: "nao"},
	{a: "mao", b: "wes"},
	{a: "nao", b: "nrg"},
	{a: "nth", b: "nrg"},
	{a: "nth", b: "ska"},
	{a: "nrg", b: "bar"},
	{a: "tys", b: "wes"},

	// Sea to coastal
	{a: "adr", b: "alb"},
	{a: "adr", b: "apu"},
	{a: "adr", b: "tri"},
	{a: "adr", b: "ven"},
	{a: "aeg", b: "bul", bCoast: SouthCoast},
	{a: "aeg", b: "con"},
	{a: "aeg", b: "gre"},
	{a: "aeg", b: "smy"},
	{a: "bal", b: "ber"},
	{a: "bal", b: "den"},
	{a: "bal", b: "kie"},
	{a: "bal", b: "lvn"},
	{a: "bal", b: "pru"},
	{a: "bal", b: "swe"},
	{a: "bar", b: "nwy"},
	{a: "bar", b: "stp", bCoast: NorthCoast},
	{a: "bla", b: "ank"},
	{a: "bla", b: "arm"},
	{a: "bla", b: "bul", bCoast: EastCoast},
	{a: "bla", b: "con"},
	{a: "bla", b: "rum"},
	{a: "bla", b: "sev"},
	{a: "bot", b: "fin"},
	{a: "bot", b: "lvn"},
	{a: "bot", b: "stp", bCoast: SouthCoast},
	{a: "bot", b: "swe"},
	{a: "eas", b: "smy"},
	{a: "eas", b: "syr"},
	{a: "eng", b: "bel"},
	{a: "eng", b: "bre"},
	{a: "eng", b: "lon"},
	{a: "eng", b: "pic"},
	{a: "eng", b: "wal"},
	{a: "gol", b: "mar"},
	{a: "gol", b: "pie"},
	{a: "gol", b: "spa", bCoast: SouthCoast},
	{a: "gol", b: "tus"},
	{a: "hel", b: "den"},
	{a: "hel", b: "hol"},
	{a: "hel", b: "kie"},
	{a: "ion", b: "alb"},
	{a: "ion", b: "apu"},
	{a: "ion", b: "gre"},
	{a: "ion", b: "nap"},
	{a: "ion", b: "tun"},
	{a: "iri", b: "lvp"},
	{a: "iri", b: "wal"},
	{a: "mao", b: "bre"},
	{a: "mao", b: "gas"},
	{a: "mao", b: "naf"},
	{a: "mao", b: "por"},
	{a: "mao", b: "spa", bCoast: NorthCoast},
	{a: "mao", b: "spa", bCoast: SouthCoast},
	{a: "nao", b: "cly"},
	{a: "nao", b: "lvp"},
	{a: "nth", b: "bel"},
	{a: "nth", b: "den"},
	{a: "nth", b: "edi"},
	{a: "nth", b: "hol"},
	{a: "nth", b: "lon"},
	{a: "nth", b: "nwy"},
	{a: "nth", b: "yor"},
	{a: "nrg", b: "cly"},
	{a: "nrg", b: "edi"},
	{a: "nrg", b: "nwy"},
	{a: "ska", b: "den"},
	{a: "ska", b: "nwy"},
	{a: "ska", b: "swe"},
	{a: "tys", b: "nap"},
	{a: "tys", b: "rom"},
	{a: "tys", b: "tun"},
	{a: "tys", b: "tus"},
	{a: "wes", b: "naf"},
	{a: "wes", b: "spa", bCoast: SouthCoast},
	{a: "wes", b: "tun"},

	// Coastal to coastal with only a sea border
	{a: "con", b: "bul", bCoast: EastCoast},
	{a: "con", b: "bul", bCoast: SouthCoast},
	{a: "gre", b: "bul", bCoast: SouthCoast},
	{a: "rum", b: "bul", bCoast: EastCoast},
	{a: "gas", b: "spa", bCoast: NorthCoast},
	{a: "mar", b: "spa", bCoast: SouthCoast},
	{a: "por", b: "spa", bCoast: NorthCoast},
	{a: "por", b: "spa", bCoast: SouthCoast},
	{a: "fin", b: "stp", bCoast: SouthCoast},
	{a: "lvn", b: "stp", bCoast: SouthCoast},
	{a: "nwy", b: "stp", bCoast: NorthCoast},
}

// armyLinks are army-only adjacencies: any pair involving an inland province,
// plus coastal pairs that share a land border but no fleet passage.
var armyLinks = [][2]string{
	// Inland to inland
	{"boh", "gal"}, {"boh", "mun"}, {"boh", "sil"}, {"boh", "tyr"}, {"boh", "vie"},
	{"bud", "gal"}, {"bud", "vie"},
	{"bur", "mun"}, {"bur", "par"}, {"bur", "ruh"},
	{"gal", "sil"}, {"gal", "ukr"}, {"gal", "vie"}, {"gal", "war"},
	{"mos", "ukr"}, {"mos", "war"},
	{"mun", "ruh"}, {"mun", "sil"}, {"mun", "tyr"},
	{"sil", "war"},
	{"tyr", "vie"},
	{"ukr", "war"},

	// Inland to coastal
	{"bud", "rum"}, {"bud", "ser"}, {"bud", "tri"},
	{"bur", "bel"}, {"bur", "gas"}, {"bur", "mar"}, {"bur", "pic"},
	{"gal", "rum"},
	{"gas", "mar"},
	{"mos", "lvn"}, {"mos", "sev"}, {"mos", "stp"},
	{"mun", "ber"}, {"mun", "kie"},
	{"par", "bre"}, {"par", "gas"}, {"par", "pic"},
	{"ruh", "bel"}, {"ruh", "hol"}, {"ruh", "kie"},
	{"ser", "alb"}, {"ser", "bul"}, {"ser", "gre"}, {"ser", "rum"}, {"ser", "tri"},
	{"sil", "ber"}, {"sil", "pru"},
	{"tyr", "pie"}, {"tyr", "tri"}, {"tyr", "ven"},
	{"ukr", "rum"}, {"ukr", "sev"},
	{"vie", "tri"},
	{"war", "lvn"}, {"war", "pru"},

	// Coastal to coastal sharing land but facing different seas
	{"ank", "smy"}, {"apu", "rom"}, {"arm", "smy"}, {"arm", "syr"},
	{"edi", "lvp"}, {"fin", "nwy"}, {"lvp", "yor"}, {"pie", "ven"},
	{"rom", "ven"}, {"tus", "ven"}, {"wal", "yor"},

	// Land borders onto split-coast provinces (armies ignore coasts)
	{"con", "bul"}, {"gre", "bul"}, {"rum", "bul"},
	{"gas", "spa"}, {"mar", "spa"}, {"por", "spa"},
	{"fin", "stp"}, {"lvn", "stp"}, {"nwy", "stp"},
}

// dualLinks are coastal pairs sharing both a land border and a sea border:
// traversable by armies and fleets alike.
var dualLinks = [][2]string{
	{"alb", "gre"}, {"alb", "tri"},
	{"ank", "arm"}, {"ank", "con"},
	{"apu", "nap"}, {"apu", "ven"},
	{"bel", "hol"}, {"bel", "pic"},
	{"ber", "kie"}, {"ber", "pru"},
	{"bre", "gas"}, {"bre", "pic"},
	{"cly", "edi"}, {"cly", "lvp"},
	{"con", "smy"},
	{"den", "kie"}, {"den", "swe"},
	{"edi", "yor"},
	{"fin", "swe"},
	{"hol", "kie"},
	{"lon", "wal"}, {"lon", "yor"},
	{"lvp", "wal"},
	{"mar", "pie"},
	{"naf", "tun"},
	{"nwy", "swe"},
	{"pie", "tus"},
	{"pru", "lvn"},
	{"rom", "nap"}, {"rom", "tus"},
	{"sev", "arm"}, {"sev", "rum"},
	{"smy", "syr"},
	{"tri", "ven"},
}

func buildStandardMap() *Map {
	m := &Map{
		Provinces:        make(map[string]*Province, ProvinceCount),
		Adjacencies:      make(map[string][]Adjacency, 2*ProvinceCount),
		VictoryThreshold: 18,
	}

	for _, d := range provinceDefs {
		m.Provinces[d.id] = &Province{
			ID:             d.id,
			Name:           d.name,
			Type:           d.typ,
			IsSupplyCenter: d.sc,
			HomePower:      d.home,
			Coasts:         d.coasts,
		}
	}

	addAdj := func(from string, fromCoast Coast, to string, toCoast Coast, armyOK, fleetOK bool) {
		m.Adjacencies[from] = append(m.Adjacencies[from], Adjacency{
			From:      from,
			FromCoast: fromCoast,
			To:        to,
			ToCoast:   toCoast,
			ArmyOK:    armyOK,
			FleetOK:   fleetOK,
		})
	}

	for _, l := range fleetLinks {
		addAdj(l.a, l.aCoast, l.b, l.bCoast, false, true)
		addAdj(l.b, l.bCoast, l.a, l.aCoast, false, true)
	}
	for _, l := range armyLinks {
		addAdj(l[0], NoCoast, l[1], NoCoast, true, false)
		addAdj(l[1], NoCoast, l[0], NoCoast, true, false)
	}
	for _, l := range dualLinks {
		addAdj(l[0], NoCoast, l[1], NoCoast, true, true)
		addAdj(l[1], NoCoast, l[0], NoCoast, true, true)
	}

	// Dense province index, sorted for deterministic ordering.
	keys := make([]string, 0, len(m.Provinces))
	for id := range m.Provinces {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	m.buildIndex(keys)

	return m
}
