package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Translate/internal/core"
	"github.com/gorilla/websocket"
)

// TrySend queues f for the client without blocking.
func (s *Supervisor) TrySend(f core.Frame) error {
	select {
	case s.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Send queues f, waiting for room until the session stops.
func (s *Supervisor) Send(f core.Frame) error {
	select {
	case s.send <- f:
		return nil
	case <-s.stopped:
		return ErrStopped
	}
}

func (s *Supervisor) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("sendJSON marshal")
		return
	}
	if err := s.Send(core.Frame{Type: websocket.TextMessage, Data: b}); err != nil {
		s.logger.Debug().Err(err).Msg("text frame not delivered")
	}
}

func (s *Supervisor) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("writePump ctx done")
			return
		case f := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(f.Type, f.Data); err != nil {
				s.logger.Error().Err(err).Msg("writePump write error")
				_ = s.conn.Close()
				return
			}
		}
	}
}

// readPump feeds the main loop and closes inbound when the client goes away.
// Reads stay in their own goroutine since a gorilla read deadline is terminal.
func (s *Supervisor) readPump(ctx context.Context) {
	defer close(s.inbound)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Warn().Err(err).Msg("readPump read error")
			} else {
				s.logger.Debug().Err(err).Msg("readPump closed")
			}
			return
		}
		select {
		case s.inbound <- inbound{kind: kind, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat pings the client until the session ends; reconnects do not stop it.
func (s *Supervisor) heartbeat(ctx context.Context) {
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.TrySend(core.Frame{Type: websocket.TextMessage, Data: []byte("ping")}); err != nil {
				s.logger.Warn().Err(err).Msg("heartbeat dropped")
			}
		}
	}
}
