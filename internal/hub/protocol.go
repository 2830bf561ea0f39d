package hub

import "encoding/json"

// Wire frames exchanged over the live channel. The same frame envelope is
// used in both directions; Ack correlates a messageCreate command with its
// acknowledgment. Some client versions consume the ack payload, others wait
// for the rebroadcast newMessage, so the server always sends both.
const (
	EventConnected     = "connected"
	EventNewMessage    = "newMessage"
	EventMessageCreate = "messageCreate"
	EventAck           = "ack"
	EventError         = "error"
)

// Terminal handshake error strings, part of the wire contract.
const (
	HandshakeTokenNecessary = "Token necessary"
	HandshakeInvalidToken   = "Invalid token"
	HandshakeTokenExpired   = "Token expired"
	HandshakeSchoolBlocked  = "Can not connect to this school"
	HandshakeSchoolMissing  = "School not found"
)

type Frame struct {
	Event string          `json:"event"`
	Ack   int64           `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ConnectedPayload struct {
	Rooms []string `json:"rooms"`
}

type CreatePayload struct {
	Group string `json:"group"`
	Text  string `json:"text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewFrame(event string, ack int64, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Ack: ack, Data: data}, nil
}
