package core

import "time"

// Frame is an outbound message for the browser leg.
type Frame struct {
	Type int // websocket message type
	Data []byte
}

// ClientConnection abstracts the browser transport.
// Owned by the adapter; the adapter must Close() it.
type ClientConnection interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}
