// Package domain contains entity without logic, just meta-data
package domain

import "strings"

const (
	DefaultTargetLanguage = "en"
	DefaultVoice          = "Cherry"
	MaxLanguageLen        = 16
	MaxVoiceLen           = 64
)

type SessionID string

// SessionParams are the connection-start parameters of a relay session.
type SessionParams struct {
	TargetLanguage    string `form:"target_language,default=en"`
	Voice             string `form:"voice,default=Cherry"`
	AudioEnabled      bool   `form:"audio_enabled,default=true"`
	OSCMuteControl    bool   `form:"osc_mute_control,default=true"`
	SendToOSC         bool   `form:"send_to_osc,default=true"`
	LineBreaksEnabled bool   `form:"line_breaks_enabled,default=false"`
}

// DefaultSessionParams mirrors the defaults a browser gets when it omits a query parameter.
func DefaultSessionParams() SessionParams {
	return SessionParams{
		TargetLanguage:    DefaultTargetLanguage,
		Voice:             DefaultVoice,
		AudioEnabled:      true,
		OSCMuteControl:    true,
		SendToOSC:         true,
		LineBreaksEnabled: false,
	}
}

// Session is the per-connection configuration owned by the relay supervisor.
// Voice is only meaningful while AudioEnabled is set.
type Session struct {
	ID                SessionID `json:"id"`
	TargetLanguage    string    `json:"target_language"`
	Voice             string    `json:"voice,omitempty"`
	AudioEnabled      bool      `json:"audio_enabled"`
	OSCMuteControl    bool      `json:"osc_mute_control"`
	SendToOSC         bool      `json:"send_to_osc"`
	LineBreaksEnabled bool      `json:"line_breaks_enabled"`
}

func NewSession(id SessionID, p SessionParams) *Session {
	lang := strings.TrimSpace(p.TargetLanguage)
	if lang == "" || len(lang) > MaxLanguageLen {
		lang = DefaultTargetLanguage
	}
	voice := strings.TrimSpace(p.Voice)
	if !p.AudioEnabled || voice == "" || len(voice) > MaxVoiceLen {
		voice = DefaultVoice
	}
	return &Session{
		ID:                id,
		TargetLanguage:    lang,
		Voice:             voice,
		AudioEnabled:      p.AudioEnabled,
		OSCMuteControl:    p.OSCMuteControl,
		SendToOSC:         p.SendToOSC,
		LineBreaksEnabled: p.LineBreaksEnabled,
	}
}

// SessionUpdate is a partial change to the upstream-facing part of a Session.
// Nil fields are left untouched.
type SessionUpdate struct {
	TargetLanguage *string `json:"target_language,omitempty"`
	Voice          *string `json:"voice,omitempty"`
	AudioEnabled   *bool   `json:"audio_enabled,omitempty"`
}

func (u SessionUpdate) Empty() bool {
	return u.TargetLanguage == nil && u.Voice == nil && u.AudioEnabled == nil
}

// Apply merges u into s and reports whether anything changed.
func (s *Session) Apply(u SessionUpdate) bool {
	changed := false
	if u.TargetLanguage != nil && *u.TargetLanguage != s.TargetLanguage {
		s.TargetLanguage = *u.TargetLanguage
		changed = true
	}
	if u.Voice != nil && *u.Voice != s.Voice {
		s.Voice = *u.Voice
		changed = true
	}
	if u.AudioEnabled != nil && *u.AudioEnabled != s.AudioEnabled {
		s.AudioEnabled = *u.AudioEnabled
		changed = true
	}
	return changed
}
