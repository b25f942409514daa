package upstream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/Translate/internal/domain"
)

// Event is a decoded server event. The set of variants is closed.
type Event interface {
	isEvent()
}

// TextDelta is an incremental piece of translated text.
type TextDelta struct {
	Type string
	Text string
}

// TextDone carries the final text of a response.
type TextDone struct {
	Type string
	Text string
}

// AudioDelta is a decoded PCM16 chunk.
type AudioDelta struct {
	PCM []byte
}

type ResponseDone struct {
	Usage *domain.Usage
}

type SessionUpdated struct{}

// PartialResult is an unlisted event carrying an in-progress transcript and
// the pending tail the service has not committed yet.
type PartialResult struct {
	Type  string
	Text  string
	Stash string
}

// Render appends the pending tail in brackets after the chatbox delimiter.
func (p PartialResult) Render() string {
	return p.Text + " ... [" + strings.TrimPrefix(p.Stash, " ") + "]"
}

type Unhandled struct {
	Type string
}

func (TextDelta) isEvent()      {}
func (TextDone) isEvent()       {}
func (AudioDelta) isEvent()     {}
func (ResponseDone) isEvent()   {}
func (SessionUpdated) isEvent() {}
func (PartialResult) isEvent()  {}
func (Unhandled) isEvent()      {}

type rawEvent struct {
	Type       string  `json:"type"`
	Transcript string  `json:"transcript"`
	Delta      string  `json:"delta"`
	Text       *string `json:"text"`
	Stash      *string `json:"stash"`
	Response   *struct {
		Usage *domain.Usage `json:"usage"`
	} `json:"response"`
}

// DecodeEvent parses one server frame. It returns ErrDecode when the frame is not
// a JSON object and ErrMalformedEvent when a known shape is missing a field.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch raw.Type {
	case "response.audio_transcript.delta":
		return TextDelta{Type: raw.Type, Text: raw.Transcript}, nil
	case "response.text.delta", "response.output_text.delta":
		return TextDelta{Type: raw.Type, Text: raw.Delta}, nil
	case "response.audio_transcript.done":
		return TextDone{Type: raw.Type, Text: raw.Transcript}, nil
	case "response.text.done":
		var text string
		if raw.Text != nil {
			text = *raw.Text
		}
		return TextDone{Type: raw.Type, Text: text}, nil
	case "response.audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(raw.Delta)
		if err != nil {
			return nil, fmt.Errorf("%w: audio delta: %v", ErrMalformedEvent, err)
		}
		return AudioDelta{PCM: pcm}, nil
	case "response.done":
		var usage *domain.Usage
		if raw.Response != nil {
			usage = raw.Response.Usage
		}
		return ResponseDone{Usage: usage}, nil
	case "session.updated":
		return SessionUpdated{}, nil
	}

	if raw.Text != nil {
		if raw.Stash == nil {
			return nil, fmt.Errorf("%w: %q has text but no stash", ErrMalformedEvent, raw.Type)
		}
		return PartialResult{Type: raw.Type, Text: *raw.Text, Stash: *raw.Stash}, nil
	}
	return Unhandled{Type: raw.Type}, nil
}
