// Package server defines the real-time message envelope and utility helpers
// that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"
)

const messageTypeSend = "send"

// frame is one WebSocket data message. Opcode is websocket.TextMessage or
// websocket.BinaryMessage and is preserved when the frame is relayed.
type frame struct {
	opcode int
	data   []byte
}

func textFrame(data []byte) frame {
	return frame{opcode: websocket.TextMessage, data: data}
}

// Inbound is a decoded client message. It is either a Send or an Unknown.
type Inbound interface {
	inbound()
}

// Send is a chat message. UserID is the identity the sender declares, empty
// when the message carries no user id.
type Send struct {
	UserID string
}

// Unknown is any well-formed message whose type the server does not handle.
type Unknown struct {
	Type string
}

func (Send) inbound() {}
func (Unknown) inbound() {}

type envelope struct {
	Type string `json:"type"`
	User *struct {
		ID any `json:"id"`
	} `json:"user"`
}

// DecodeInbound classifies a raw client message. Only the fields needed for
// routing are read; the payload is never re-encoded.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Type != messageTypeSend {
		return Unknown{Type: env.Type}, nil
	}

	var send Send
	if env.User != nil {
		if id, ok := env.User.ID.(string); ok {
			send.UserID = id
		}
	}
	return send, nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
