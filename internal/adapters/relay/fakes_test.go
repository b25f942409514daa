package relay

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Translate/internal/core"
	"github.com/dkeye/Translate/internal/domain"
	"github.com/gorilla/websocket"
)

type clientFrame struct {
	kind int
	data []byte
}

// fakeConn is an in-memory client connection.
type fakeConn struct {
	in     chan clientFrame
	out    chan core.Frame
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	closeCode int
	closeText string
	closeSeen bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan clientFrame, 16),
		out:    make(chan core.Frame, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return f.kind, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case c.out <- core.Frame{Type: kind, Data: data}:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *fakeConn) WriteControl(kind int, data []byte, _ time.Time) error {
	if kind != websocket.CloseMessage {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeSeen {
		return websocket.ErrCloseSent
	}
	c.closeSeen = true
	if len(data) >= 2 {
		c.closeCode = int(binary.BigEndian.Uint16(data))
		c.closeText = string(data[2:])
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendBinary(data ...byte) {
	c.in <- clientFrame{kind: websocket.BinaryMessage, data: data}
}

func (c *fakeConn) sendText(s string) {
	c.in <- clientFrame{kind: websocket.TextMessage, data: []byte(s)}
}

func (c *fakeConn) closeInfo() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeText
}

// fakeUpstream records calls and ends its reader when done receives.
type fakeUpstream struct {
	sess       domain.Session
	connectErr error
	emit       []string
	done       chan error
	closedC    chan struct{}

	// imageGate, when set, holds SendImageFrame until it is closed or the
	// upstream is closed. imageStarted is signalled on entry.
	imageGate    chan struct{}
	imageStarted chan struct{}

	mu      sync.Mutex
	audio   [][]byte
	video   [][]byte
	updates []domain.SessionUpdate
	mutes   []bool
	closed  int
}

func (u *fakeUpstream) Connect(context.Context) error { return u.connectErr }

func (u *fakeUpstream) UpdateSession(upd domain.SessionUpdate) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates = append(u.updates, upd)
	return nil
}

func (u *fakeUpstream) SendAudioChunk(pcm []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.audio = append(u.audio, append([]byte(nil), pcm...))
	return nil
}

func (u *fakeUpstream) SendImageFrame(jpeg []byte) error {
	if u.imageGate != nil {
		select {
		case u.imageStarted <- struct{}{}:
		default:
		}
		select {
		case <-u.imageGate:
		case <-u.closedC:
			return net.ErrClosed
		}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.video = append(u.video, append([]byte(nil), jpeg...))
	return nil
}

func (u *fakeUpstream) HandleServerMessages(ctx context.Context, text core.TextSink, _ core.AudioSink) error {
	for _, t := range u.emit {
		text.OnText(t)
	}
	select {
	case err := <-u.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *fakeUpstream) OnMute(muted bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mutes = append(u.mutes, muted)
}

func (u *fakeUpstream) Usage() domain.UsageStats { return domain.UsageStats{Responses: 1} }

func (u *fakeUpstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed++
	if u.closed == 1 {
		close(u.closedC)
	}
	return nil
}

func (u *fakeUpstream) snapshot() (audio, video [][]byte, updates []domain.SessionUpdate, mutes []bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.audio, u.video, u.updates, u.mutes
}

// fakeFactory hands out upstreams; connectErrs is consumed one per attempt.
type fakeFactory struct {
	mu          sync.Mutex
	connectErrs []error
	emit        []string
	imageGate   chan struct{}
	created     []*fakeUpstream
	overlays    []core.OverlaySink
}

func (f *fakeFactory) NewUpstream(sess domain.Session, overlay core.OverlaySink) core.Upstream {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUpstream{
		sess:         sess,
		emit:         f.emit,
		done:         make(chan error, 1),
		closedC:      make(chan struct{}),
		imageGate:    f.imageGate,
		imageStarted: make(chan struct{}, 1),
	}
	if len(f.connectErrs) > 0 {
		u.connectErr = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	f.created = append(f.created, u)
	f.overlays = append(f.overlays, overlay)
	return u
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) last() *fakeUpstream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type fakeBridge struct {
	mu         sync.Mutex
	lineBreaks []bool
	listener   core.MuteListener
	revoked    int
}

func (b *fakeBridge) ShowText(string, bool) error { return nil }

func (b *fakeBridge) SetLineBreaks(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lineBreaks = append(b.lineBreaks, enabled)
}

func (b *fakeBridge) SetMuteListener(l core.MuteListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listener = nil
		b.revoked++
	}
}

func (b *fakeBridge) current() core.MuteListener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
