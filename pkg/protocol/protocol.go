// Package protocol defines the wire format for the gateway's WebSocket
// control plane: frame shapes, RPC method names, and event names.
package protocol

import "encoding/json"

// ProtocolVersion is the current gateway wire protocol version, negotiated
// during the connect handshake via minProtocol/maxProtocol.
const ProtocolVersion = 1

// FrameType identifies the kind of a JSON frame exchanged over the socket.
type FrameType string

const (
	FrameReq   FrameType = "req"
	FrameRes   FrameType = "res"
	FrameError FrameType = "error"
	FrameEvent FrameType = "event"
)

// ReqFrame is a client-initiated request.
type ReqFrame struct {
	Type            FrameType       `json:"type"`
	ID              string          `json:"id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

// ResFrame is a successful response to a ReqFrame.
type ResFrame struct {
	Type    FrameType   `json:"type"`
	ID      string      `json:"id"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorFrame reports a failed request or a framing/auth failure.
// ID is empty when the failure happens before a request could be parsed.
type ErrorFrame struct {
	Type    FrameType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// EventFrame is a server-pushed event, fanned out from the Event Bus.
type EventFrame struct {
	Type  FrameType   `json:"type"`
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// NewEvent builds an EventFrame ready to marshal onto the wire.
func NewEvent(name string, data interface{}) *EventFrame {
	return &EventFrame{Type: FrameEvent, Event: name, Data: data}
}

// NewError builds an ErrorFrame.
func NewError(id, code, message string) *ErrorFrame {
	return &ErrorFrame{Type: FrameError, ID: id, Code: code, Message: message}
}

// NewResponse builds a ResFrame.
func NewResponse(id string, payload interface{}) *ResFrame {
	return &ResFrame{Type: FrameRes, ID: id, Payload: payload}
}
