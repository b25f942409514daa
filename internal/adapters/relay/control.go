package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dkeye/Translate/internal/adapters/upstream"
	"github.com/dkeye/Translate/internal/domain"
)

type formatUpdate struct {
	LineBreaksEnabled *bool `json:"line_breaks_enabled"`
}

func (s *Supervisor) handleText(ctx context.Context, data []byte) error {
	if string(data) == "pong" {
		return nil
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn().Err(err).Msg("bad control frame")
		return nil
	}

	switch env.Type {
	case "session.update":
		var u domain.SessionUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			s.logger.Warn().Err(err).Msg("bad session.update payload")
			return nil
		}
		return s.applySessionUpdate(ctx, u)
	case "format.update":
		var f formatUpdate
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn().Err(err).Msg("bad format.update payload")
			return nil
		}
		s.applyFormatUpdate(f)
	default:
		s.logger.Warn().Str("type", env.Type).Msg("unknown control frame")
	}
	return nil
}

// sanitize drops fields that would produce an invalid upstream configuration.
func (s *Supervisor) sanitize(u domain.SessionUpdate) domain.SessionUpdate {
	if u.TargetLanguage != nil {
		lang := strings.TrimSpace(*u.TargetLanguage)
		if lang == "" || len(lang) > domain.MaxLanguageLen {
			s.logger.Warn().Str("language", *u.TargetLanguage).Msg("language ignored")
			u.TargetLanguage = nil
		} else {
			u.TargetLanguage = &lang
		}
	}
	if u.Voice != nil {
		voice := strings.TrimSpace(*u.Voice)
		if voice == "" || len(voice) > domain.MaxVoiceLen {
			s.logger.Warn().Str("voice", *u.Voice).Msg("voice ignored")
			u.Voice = nil
		} else {
			u.Voice = &voice
		}
	}
	return u
}

func (s *Supervisor) applySessionUpdate(ctx context.Context, u domain.SessionUpdate) error {
	u = s.sanitize(u)
	if u.Empty() {
		return nil
	}
	s.mu.Lock()
	changed := s.session.Apply(u)
	sess := s.session
	s.mu.Unlock()
	if !changed {
		return nil
	}
	s.logger.Info().
		Str("language", sess.TargetLanguage).
		Str("voice", sess.Voice).
		Bool("audio", sess.AudioEnabled).
		Msg("session updated")

	if s.link == nil {
		return nil
	}
	if err := s.link.up.UpdateSession(u); err != nil {
		if errors.Is(err, upstream.ErrNotConnected) {
			return nil
		}
		return s.sendFailed(ctx, err)
	}
	return nil
}

func (s *Supervisor) applyFormatUpdate(f formatUpdate) {
	if f.LineBreaksEnabled == nil {
		return
	}
	enabled := *f.LineBreaksEnabled
	if s.bridge != nil {
		s.bridge.SetLineBreaks(enabled)
	}
	s.mu.Lock()
	s.session.LineBreaksEnabled = enabled
	s.mu.Unlock()
	s.logger.Info().Bool("line_breaks", enabled).Msg("format updated")
}
