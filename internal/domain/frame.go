package domain

import "errors"

// StreamTag is the first byte of a client binary message.
type StreamTag byte

const (
	TagAudio StreamTag = 0
	TagVideo StreamTag = 1
)

var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrUnknownTag = errors.New("unknown stream tag")
)

// MediaFrame is a demultiplexed client binary message.
type MediaFrame struct {
	Tag     StreamTag
	Payload []byte
}

// ParseMediaFrame splits a `[tag][payload]` message. The payload aliases data.
// Unknown tags are returned together with ErrUnknownTag so callers can log them.
func ParseMediaFrame(data []byte) (MediaFrame, error) {
	if len(data) == 0 {
		return MediaFrame{}, ErrEmptyFrame
	}
	f := MediaFrame{Tag: StreamTag(data[0]), Payload: data[1:]}
	switch f.Tag {
	case TagAudio, TagVideo:
		return f, nil
	default:
		return f, ErrUnknownTag
	}
}
