package protocol

import (
	"encoding/json"

	"github.com/tmarais/backchannel/pkg/engine"
)

// Response is the envelope of every server reply. Exactly one of Data and
// Err is set.
type Response struct {
	RequestID string          `json:"request_id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	Err       *Error          `json:"error,omitempty"`
}

// OK builds a success response, encoding the payload.
func OK(req *Request, payload any) *Response {
	resp := &Response{RequestID: req.RequestID, Name: req.Name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			resp.Err = AsError(err)
			return resp
		}
		resp.Data = data
	}
	return resp
}

// Fail builds an error response.
func Fail(req *Request, err error) *Response {
	return &Response{RequestID: req.RequestID, Name: req.Name, Err: AsError(err)}
}

// Typed response payloads.

type SignInResult struct {
	Token string `json:"token"`
}

type GameSummary struct {
	GameID     string   `json:"game_id"`
	Phase      string   `json:"phase"`
	Rules      []string `json:"rules,omitempty"`
	NPlayers   int      `json:"n_players"`
	NOpenSeats int      `json:"n_open_seats"`
	Protected  bool     `json:"protected,omitempty"`
}

type GetGamesResult struct {
	Games []GameSummary `json:"games"`
}

type JoinGameResult struct {
	GameID string `json:"game_id"`
	Role   string `json:"role"`
	Power  string `json:"power,omitempty"`
	Phase  string `json:"phase"`
}

// PowerInfo is the public view of one power's seat.
type PowerInfo struct {
	Name          string `json:"name"`
	Controller    string `json:"controller,omitempty"`
	CivilDisorder bool   `json:"civil_disorder,omitempty"`
	DrawVote      bool   `json:"draw_vote,omitempty"`
	Eliminated    bool   `json:"eliminated,omitempty"`
	Wait          bool   `json:"wait,omitempty"`
	HasOrders     bool   `json:"has_orders,omitempty"`
}

// GetGameResult is the full game view for one recipient. Orders holds only
// the order sets the recipient is allowed to see.
type GetGameResult struct {
	GameID       string              `json:"game_id"`
	Phase        string              `json:"phase"`
	Rules        []string            `json:"rules,omitempty"`
	State        engine.GameState    `json:"state"`
	Powers       []PowerInfo         `json:"powers"`
	Orders       map[string][]string `json:"orders,omitempty"`
	DeadlineUnix int64               `json:"deadline_unix,omitempty"`
	Winner       string              `json:"winner,omitempty"`
	Draw         bool                `json:"draw,omitempty"`
}

type SynchronizeResult struct {
	GameID string `json:"game_id"`
	// Phases holds every PhaseData after the client's last known index.
	Phases []PhaseData `json:"phases,omitempty"`
	// CurrentPhase is the server's current phase string for the game.
	CurrentPhase string `json:"current_phase"`
	// CurrentIndex counts the PhaseData entries in the game's history; the
	// client stores it and sends it back as LastKnownPhaseIndex.
	CurrentIndex int `json:"current_index"`
}
