package upstream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dkeye/Translate/internal/core"
	"github.com/rs/zerolog/log"
)

// HandleServerMessages reads events until the stream fails and returns that error.
// Closing the client unblocks the read. Malformed events are dropped.
func (c *Client) HandleServerMessages(ctx context.Context, text core.TextSink, audio core.AudioSink) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	defer c.connected.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := DecodeEvent([]byte(strings.ToValidUTF8(string(data), "")))
		if errors.Is(err, ErrMalformedEvent) {
			log.Warn().Err(err).Str("module", "upstream").Str("sid", string(c.sid)).Msg("event dropped")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("module", "upstream").Str("sid", string(c.sid)).Msg("event decode")
			return err
		}
		c.dispatch(ev, text, audio)
	}
}

func (c *Client) dispatch(ev Event, text core.TextSink, audio core.AudioSink) {
	switch e := ev.(type) {
	case TextDelta:
		if e.Text != "" && text != nil {
			text.OnText(e.Text)
		}
	case TextDone:
		if e.Text == "" {
			return
		}
		if text != nil {
			text.OnText(e.Text)
		}
		c.showOverlay(e.Text, false)
	case AudioDelta:
		c.mu.Lock()
		enabled := c.audio
		c.mu.Unlock()
		if enabled && audio != nil && len(e.PCM) > 0 {
			audio.OnAudio(e.PCM)
		}
	case ResponseDone:
		if e.Usage == nil {
			return
		}
		c.mu.Lock()
		c.usage.Add(*e.Usage)
		total := c.usage.TotalTokens
		c.mu.Unlock()
		log.Debug().
			Str("module", "upstream").
			Str("sid", string(c.sid)).
			Int("tokens", e.Usage.TotalTokens).
			Int("total_tokens", total).
			Msg("response done")
	case SessionUpdated:
		log.Debug().Str("module", "upstream").Str("sid", string(c.sid)).Msg("session updated")
	case PartialResult:
		c.showOverlay(e.Render(), true)
	case Unhandled:
		log.Debug().Str("module", "upstream").Str("sid", string(c.sid)).Str("type", e.Type).Msg("unhandled event")
	}
}

func (c *Client) showOverlay(text string, ongoing bool) {
	if !ongoing {
		c.mu.Lock()
		started := c.muteStarted
		c.muteStarted = time.Time{}
		c.mu.Unlock()
		if !started.IsZero() {
			log.Info().
				Str("module", "upstream").
				Str("sid", string(c.sid)).
				Dur("elapsed", time.Since(started)).
				Msg("translation finished after mute")
		}
	}
	if c.overlay == nil {
		return
	}
	if err := c.overlay.ShowText(text, ongoing); err != nil {
		log.Warn().Err(err).Str("module", "upstream").Str("sid", string(c.sid)).Msg("overlay send")
	}
}
