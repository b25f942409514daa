package relay

import (
	"github.com/dkeye/Translate/internal/core"
	"github.com/gorilla/websocket"
)

var (
	_ core.TextSink     = (*Supervisor)(nil)
	_ core.AudioSink    = (*Supervisor)(nil)
	_ core.MuteListener = (*Supervisor)(nil)
)

type translationText struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// OnText echoes translated text to the client. It waits for queue room
// rather than dropping.
func (s *Supervisor) OnText(text string) {
	s.sendJSON(translationText{Type: "translation_text", Data: text})
}

// OnAudio echoes synthesized PCM to the client as a binary frame.
func (s *Supervisor) OnAudio(pcm []byte) {
	if err := s.TrySend(core.Frame{Type: websocket.BinaryMessage, Data: pcm}); err != nil {
		s.logger.Warn().Err(err).Int("len", len(pcm)).Msg("audio frame dropped")
	}
}

// OnMute is called from the bridge listener. It only hands the value to the
// main loop; the newest value wins when the loop is behind.
func (s *Supervisor) OnMute(muted bool) {
	select {
	case s.mute <- muted:
		return
	default:
	}
	select {
	case <-s.mute:
	default:
	}
	select {
	case s.mute <- muted:
	default:
	}
}

func (s *Supervisor) applyMute(muted bool) {
	s.muted.Store(muted)
	if s.link != nil {
		s.link.up.OnMute(muted)
	}
}
