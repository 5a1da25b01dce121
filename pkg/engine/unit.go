package engine

// Power identifies a nation-player by name within a game.
type Power string

const (
	Austria Power = "austria"
	England Power = "england"
	France  Power = "france"
	Germany Power = "germany"
	Italy   Power = "italy"
	Russia  Power = "russia"
	Turkey  Power = "turkey"
	Neutral Power = ""
)

// AllPowers returns the seven great powers in standard order.
func AllPowers() []Power {
	return []Power{Austria, England, France, Germany, Italy, Russia, Turkey}
}

// UnitType represents the type of a military unit.
type UnitType int

const (
	Army UnitType = iota
	Fleet
)

func (u UnitType) String() string {
	if u == Army {
		return "army"
	}
	return "fleet"
}

// Unit represents a single military unit on the board.
type Unit struct {
	Type     UnitType `json:"type"`
	Power    Power    `json:"power"`
	Province string   `json:"province"`
	Coast    Coast    `json:"coast,omitempty"`
}
