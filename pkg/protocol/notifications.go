package protocol

import "encoding/json"

// Notification names.
const (
	NotifPhaseUpdate       = "phase_update"
	NotifGameProcessed     = "game_processed"
	NotifPowerOrdersUpdate = "power_orders_update"
	NotifPowerVoteUpdate   = "power_vote_update"
	NotifGameStatusUpdate  = "game_status_update"
	NotifClearedCenters    = "cleared_centers"
	NotifAccountDeleted    = "account_deleted"
	NotifOmniscientUpdated = "omniscient_updated"
	NotifPressReceived     = "press_received"
)

// Notification is the envelope of every server-to-client event frame. The
// token identifies which of the recipient's channels the event addresses.
type Notification struct {
	NotificationID string          `json:"notification_id"`
	Name           string          `json:"name"`
	Token          string          `json:"token,omitempty"`
	GameID         string          `json:"game_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// NewNotification encodes a typed payload into a notification envelope.
// Encoding failure returns an envelope without data; callers treat the
// payload as best-effort.
func NewNotification(id, name, gameID string, payload any) *Notification {
	n := &Notification{NotificationID: id, Name: name, GameID: gameID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			n.Data = data
		}
	}
	return n
}

// Typed notification payloads.

// PhaseUpdateData announces the game's new current phase after processing or
// a forced transition.
type PhaseUpdateData struct {
	Phase string `json:"phase"`
	// PhaseIndex counts the processed phases in the history, including the
	// one this notification announces.
	PhaseIndex int `json:"phase_index"`
}

// GameProcessedData carries the full PhaseData produced by processing.
type GameProcessedData struct {
	Processed PhaseData `json:"processed"`
	// NewPhase is the phase the game advanced to; COMPLETED when over.
	NewPhase string `json:"new_phase"`
	Winner   string `json:"winner,omitempty"`
	Draw     bool   `json:"draw,omitempty"`
}

// PowerOrdersUpdateData announces that a power's order set changed. Order
// text is included only for recipients allowed to see it.
type PowerOrdersUpdateData struct {
	Power     string   `json:"power"`
	Orders    []string `json:"orders,omitempty"`
	HasOrders bool     `json:"has_orders"`
}

// PowerVoteUpdateData announces a draw-vote change.
type PowerVoteUpdateData struct {
	Power string `json:"power"`
	Draw  bool   `json:"draw"`
}

// GameStatusUpdateData announces lifecycle changes: started, completed,
// deadline moved, power joined/left, civil disorder toggled.
type GameStatusUpdateData struct {
	Status        string `json:"status,omitempty"`
	Phase         string `json:"phase,omitempty"`
	DeadlineUnix  int64  `json:"deadline_unix,omitempty"`
	Power         string `json:"power,omitempty"`
	CivilDisorder bool   `json:"civil_disorder,omitempty"`
}

// ClearedCentersData announces that a power lost all centres.
type ClearedCentersData struct {
	Power string `json:"power"`
}

// AccountDeletedData tells sessions of a deleted user to drop their state.
type AccountDeletedData struct {
	Username string `json:"username"`
}

// OmniscientUpdatedData announces a change to a game's omniscient observers.
type OmniscientUpdatedData struct {
	Username string `json:"username"`
	Joined   bool   `json:"joined"`
}

// PressReceivedData delivers free-text press between powers. The body is
// never interpreted by the server.
type PressReceivedData struct {
	From string `json:"from"`
	Body string `json:"body"`
}
