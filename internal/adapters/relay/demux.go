package relay

import (
	"context"
	"errors"

	"github.com/dkeye/Translate/internal/adapters/upstream"
	"github.com/dkeye/Translate/internal/domain"
	"github.com/gorilla/websocket"
)

func (s *Supervisor) handleInbound(ctx context.Context, msg inbound) error {
	if s.State() == StateNoUpstream {
		if err := s.connect(ctx); err != nil {
			return s.recover(ctx, err)
		}
	}
	switch msg.kind {
	case websocket.BinaryMessage:
		return s.handleBinary(ctx, msg.data)
	case websocket.TextMessage:
		return s.handleText(ctx, msg.data)
	}
	return nil
}

func (s *Supervisor) handleBinary(ctx context.Context, data []byte) error {
	frame, err := domain.ParseMediaFrame(data)
	if err != nil {
		s.logger.Warn().Err(err).Int("len", len(data)).Msg("binary frame dropped")
		return nil
	}
	if s.link == nil {
		return nil
	}
	switch frame.Tag {
	case domain.TagAudio:
		if err := s.link.up.SendAudioChunk(frame.Payload); err != nil {
			return s.sendFailed(ctx, err)
		}
	case domain.TagVideo:
		s.enqueueVideo(frame.Payload)
	}
	return nil
}

// enqueueVideo never blocks the audio path; a full queue drops the frame.
func (s *Supervisor) enqueueVideo(jpeg []byte) {
	select {
	case s.link.video <- jpeg:
	default:
		s.logger.Debug().Int("queued", len(s.link.video)).Msg("video frame dropped")
	}
}

// drainVideo forwards queued frames one at a time until the link is torn down.
func (s *Supervisor) drainVideo(ctx context.Context, l *link) {
	for {
		select {
		case <-ctx.Done():
			return
		case jpeg, ok := <-l.video:
			if !ok || ctx.Err() != nil {
				return
			}
			if err := l.up.SendImageFrame(jpeg); err != nil {
				if errors.Is(err, upstream.ErrEmptyImage) {
					s.logger.Warn().Msg("empty video frame")
					continue
				}
				s.logger.Error().Err(err).Msg("video send")
			}
		}
	}
}
