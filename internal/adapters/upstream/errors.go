package upstream

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dkeye/Translate/internal/app/reconnect"
	"github.com/gorilla/websocket"
)

var (
	ErrMissingCredential = errors.New("upstream: api key not configured")
	ErrNotConnected      = errors.New("upstream: not connected")
	ErrEmptyImage        = errors.New("upstream: empty image frame")
	ErrDecode            = errors.New("upstream: undecodable event")
	ErrMalformedEvent    = errors.New("upstream: malformed event")
)

// HandshakeError is returned when the service answered the upgrade with a non-101 status.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("upstream handshake: status %d: %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// CloseCode maps an upstream failure to the close code the reconnect policy classifies.
// Failures that cannot be attributed to the service map to reconnect.CodeNone.
func CloseCode(err error) int {
	if err == nil {
		return reconnect.CodeNone
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var he *HandshakeError
	if errors.As(err, &he) {
		if he.Status >= 500 {
			return websocket.CloseTryAgainLater
		}
		return reconnect.CodeNone
	}
	switch {
	case errors.Is(err, ErrDecode),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, websocket.ErrCloseSent):
		return websocket.CloseAbnormalClosure
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return websocket.CloseAbnormalClosure
	}
	return reconnect.CodeNone
}
