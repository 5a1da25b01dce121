package protocol

// Frame is the outermost JSON object on the websocket wire. Clients send
// frames carrying a request; the server sends frames carrying either a
// response or a notification. Exactly one field is set.
type Frame struct {
	Request      *Request      `json:"request,omitempty"`
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}
