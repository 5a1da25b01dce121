package protocol

import "github.com/tmarais/backchannel/pkg/engine"

// PhaseData is one entry of a game's history: the board before processing,
// the orders every power submitted, and the adjudication results. The current
// (unprocessed) phase is represented with empty Results.
type PhaseData struct {
	// Phase is the short phase string (S1901M style).
	Phase string `json:"phase"`
	// State is the board at the start of the phase.
	State engine.GameState `json:"state"`
	// Orders maps power name to its submitted orders in text notation.
	Orders map[string][]string `json:"orders,omitempty"`
	// Results maps the ordered unit's location to its result set.
	Results map[string][]engine.OrderResult `json:"results,omitempty"`
}
