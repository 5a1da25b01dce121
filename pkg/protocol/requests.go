package protocol

import "encoding/json"

// Level classifies a request by what it addresses and therefore how it
// authenticates: connection requests carry no token, channel requests carry a
// token, game requests carry a token and a game id.
type Level string

const (
	LevelConnection Level = "connection"
	LevelChannel    Level = "channel"
	LevelGame       Level = "game"
)

// Request names. Dispatch is a table keyed by these.
const (
	ReqSignIn      = "sign_in"
	ReqSignOut     = "sign_out"
	ReqCreateUser  = "create_user"
	ReqDeleteUser  = "delete_user"
	ReqGetGames    = "get_games"
	ReqCreateGame  = "create_game"
	ReqDeleteGame  = "delete_game"
	ReqJoinGame    = "join_game"
	ReqLeaveGame   = "leave_game"
	ReqGetGame     = "get_game"
	ReqSetOrders   = "set_orders"
	ReqClearOrders = "clear_orders"
	ReqSetWaitFlag = "set_wait_flag"
	ReqVote        = "vote"
	ReqProcessGame = "process_game"
	ReqSetDeadline = "set_deadline"
	ReqSynchronize = "synchronize"
	ReqSendPress   = "send_press"
)

// requestMeta records the fixed properties of each request name.
type requestMeta struct {
	level          Level
	phaseDependent bool
}

var requestTable = map[string]requestMeta{
	ReqSignIn:      {LevelConnection, false},
	ReqCreateUser:  {LevelConnection, false},
	ReqSignOut:     {LevelChannel, false},
	ReqDeleteUser:  {LevelChannel, false},
	ReqGetGames:    {LevelChannel, false},
	ReqCreateGame:  {LevelChannel, false},
	ReqJoinGame:    {LevelChannel, false},
	ReqDeleteGame:  {LevelGame, false},
	ReqLeaveGame:   {LevelGame, false},
	ReqGetGame:     {LevelGame, false},
	ReqSetOrders:   {LevelGame, true},
	ReqClearOrders: {LevelGame, true},
	ReqSetWaitFlag: {LevelGame, true},
	ReqVote:        {LevelGame, true},
	ReqProcessGame: {LevelGame, false},
	ReqSetDeadline: {LevelGame, false},
	ReqSynchronize: {LevelGame, false},
	ReqSendPress:   {LevelGame, false},
}

// LevelOf returns the level of a request name and whether the name is known.
func LevelOf(name string) (Level, bool) {
	m, ok := requestTable[name]
	return m.level, ok
}

// PhaseDependent reports whether requests with this name must carry the
// current game phase.
func PhaseDependent(name string) bool {
	return requestTable[name].phaseDependent
}

// Request is the envelope of every client-to-server frame.
type Request struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Token     string `json:"token,omitempty"`
	GameID    string `json:"game_id,omitempty"`
	// Phase is the game phase the client observed when issuing a
	// phase-dependent request.
	Phase          string `json:"phase,omitempty"`
	PhaseDependent bool   `json:"phase_dependent,omitempty"`
	// ReSent marks a request replayed by the reconnection routine.
	ReSent bool `json:"re_sent,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`
}

// Payload decodes the request data into a typed payload struct.
func (r *Request) Payload(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Typed request payloads.

type SignInData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateUserData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateGameData struct {
	GameID               string   `json:"game_id,omitempty"`
	Rules                []string `json:"rules,omitempty"`
	RegistrationPassword string   `json:"registration_password,omitempty"`
	// DeadlineSeconds maps phase type (movement/retreat/adjustment) to the
	// deadline length; missing entries use server defaults.
	DeadlineSeconds map[string]int `json:"deadline_seconds,omitempty"`
}

// Join roles.
const (
	RoleObserver   = "observer"
	RoleOmniscient = "omniscient"
	RolePower      = "power"
)

type JoinGameData struct {
	GameID string `json:"game_id"`
	Role   string `json:"role"`
	// Power names the seat when Role is "power". Empty with POWER_CHOICE
	// unset means the server assigns a free seat.
	Power                string `json:"power,omitempty"`
	RegistrationPassword string `json:"registration_password,omitempty"`
}

type SetOrdersData struct {
	Power string `json:"power"`
	// Orders in the text notation, one string per order.
	Orders []string `json:"orders"`
}

type ClearOrdersData struct {
	Power string `json:"power"`
}

type SetWaitFlagData struct {
	Power string `json:"power"`
	Wait  bool   `json:"wait"`
}

type VoteData struct {
	Power string `json:"power"`
	Draw  bool   `json:"draw"`
}

type SetDeadlineData struct {
	// DeadlineUnix is the new absolute deadline; zero clears it.
	DeadlineUnix int64 `json:"deadline_unix"`
}

type SynchronizeData struct {
	// LastKnownPhaseIndex is the number of processed PhaseData entries the
	// client already holds; zero (or negative) for none.
	LastKnownPhaseIndex int `json:"last_known_phase_index"`
}

type SendPressData struct {
	From string   `json:"from"`
	To   []string `json:"to"`
	Body string   `json:"body"`
}
