package server

import "encoding/json"

// ClientMessage is the inbound envelope. Payload stays raw until the
// dispatch switch knows which request type to decode.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func marshalMessage(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
