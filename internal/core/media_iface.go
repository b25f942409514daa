package core

import (
	"context"

	"github.com/dkeye/Translate/internal/domain"
)

// Upstream is one connection to the translation service.
type Upstream interface {
	// Connect dials the service and sends the session configuration.
	// It never retries on its own.
	Connect(ctx context.Context) error
	// UpdateSession merges the update and re-sends the configuration.
	UpdateSession(u domain.SessionUpdate) error
	SendAudioChunk(pcm []byte) error
	SendImageFrame(jpeg []byte) error
	// HandleServerMessages blocks until the stream closes or fails.
	HandleServerMessages(ctx context.Context, text TextSink, audio AudioSink) error
	MuteListener
	Usage() domain.UsageStats
	// Close is idempotent and safe on a never-connected upstream.
	Close() error
}

// UpstreamFactory builds an unconnected Upstream for the current session state.
type UpstreamFactory interface {
	NewUpstream(sess domain.Session, overlay OverlaySink) Upstream
}
