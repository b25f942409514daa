package core

// TextSink receives translated text in upstream order.
type TextSink interface {
	OnText(text string)
}

// AudioSink receives synthesized PCM in upstream order.
type AudioSink interface {
	OnAudio(pcm []byte)
}

// OverlaySink shows text in the avatar chatbox. ongoing marks an in-progress result.
type OverlaySink interface {
	ShowText(text string, ongoing bool) error
}

// MuteListener is notified when the avatar reports its self-mute state.
// Implementations invoked from the bridge must not block.
type MuteListener interface {
	OnMute(muted bool)
}
