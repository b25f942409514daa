// Package oscbridge mirrors translated text into the avatar chatbox and reports
// the avatar's self-mute state back to the live relay session.
//
// One Bridge exists per process. Its endpoints are created on first use and the
// mute listener slot is set and cleared per session.
package oscbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Translate/internal/app/chatbox"
	"github.com/dkeye/Translate/internal/core"
	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog/log"
)

const (
	AddrTyping   = "/chatbox/typing"
	AddrInput    = "/chatbox/input"
	AddrMuteSelf = "/avatar/parameters/MuteSelf"
)

type Config struct {
	SendHost   string
	SendPort   int
	ListenHost string
	ListenPort int
	MaxLength  int
}

// Sender is the outbound half of the transport; *osc.Client satisfies it.
type Sender interface {
	Send(packet osc.Packet) error
}

type muteSlot struct {
	id       uint64
	listener core.MuteListener
}

type Bridge struct {
	cfg        Config
	newSender  func() Sender
	lineBreaks atomic.Bool

	senderOnce sync.Once
	sender     Sender

	startOnce sync.Once
	startErr  error
	conn      net.PacketConn

	mu     sync.Mutex
	slot   muteSlot
	nextID uint64
}

func New(cfg Config) *Bridge {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = chatbox.MaxLength
	}
	b := &Bridge{cfg: cfg}
	b.newSender = func() Sender { return osc.NewClient(cfg.SendHost, cfg.SendPort) }
	return b
}

var _ core.OverlaySink = (*Bridge)(nil)

func (b *Bridge) client() Sender {
	b.senderOnce.Do(func() {
		b.sender = b.newSender()
		log.Info().
			Str("module", "osc").
			Str("addr", net.JoinHostPort(b.cfg.SendHost, strconv.Itoa(b.cfg.SendPort))).
			Msg("sender ready")
	})
	return b.sender
}

// SetLineBreaks switches sentence-aware formatting for subsequent ShowText calls.
func (b *Bridge) SetLineBreaks(enabled bool) {
	b.lineBreaks.Store(enabled)
}

// ShowText renders text for the chatbox and sends the typing indicator followed
// by the payload.
func (b *Bridge) ShowText(text string, ongoing bool) error {
	payload := chatbox.Render(text, b.lineBreaks.Load(), b.cfg.MaxLength)
	s := b.client()
	if err := s.Send(osc.NewMessage(AddrTyping, ongoing)); err != nil {
		return fmt.Errorf("osc %s: %w", AddrTyping, err)
	}
	if err := s.Send(osc.NewMessage(AddrInput, payload, true, !ongoing)); err != nil {
		return fmt.Errorf("osc %s: %w", AddrInput, err)
	}
	log.Debug().Str("module", "osc").Bool("ongoing", ongoing).Int("len", len([]rune(payload))).Msg("chatbox sent")
	return nil
}

// SetMuteListener installs l as the only mute listener. The returned func clears
// the slot only while l is still the installed listener.
func (b *Bridge) SetMuteListener(l core.MuteListener) (revoke func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.slot = muteSlot{id: id, listener: l}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.slot.id == id {
			b.slot = muteSlot{}
		}
	}
}

func (b *Bridge) listener() core.MuteListener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot.listener
}

// Start opens the mute endpoint once; later calls return the first result.
// The endpoint is closed when ctx ends.
func (b *Bridge) Start(ctx context.Context) error {
	b.startOnce.Do(func() {
		d := osc.NewStandardDispatcher()
		if err := d.AddMsgHandler(AddrMuteSelf, b.handleMute); err != nil {
			b.startErr = fmt.Errorf("osc handler: %w", err)
			return
		}
		addr := net.JoinHostPort(b.cfg.ListenHost, strconv.Itoa(b.cfg.ListenPort))
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			b.startErr = fmt.Errorf("osc listen %s: %w", addr, err)
			return
		}
		b.conn = conn
		go b.serve(ctx, conn, d)
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		log.Info().Str("module", "osc").Str("addr", conn.LocalAddr().String()).Msg("mute listener started")
	})
	return b.startErr
}

// serve reads datagrams until conn is closed. Malformed packets are skipped and
// messages are dispatched in arrival order.
func (b *Bridge) serve(ctx context.Context, conn net.PacketConn, d *osc.StandardDispatcher) {
	buf := make([]byte, 65535)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Str("module", "osc").Msg("listener stopped")
			}
			return
		}
		pkt, err := osc.ParsePacket(string(buf[:n]))
		if err != nil || pkt == nil {
			log.Warn().Err(err).Str("module", "osc").Str("from", from.String()).Int("len", n).Msg("malformed datagram")
			continue
		}
		d.Dispatch(pkt)
	}
}

// LocalAddr is the bound mute endpoint, nil before Start.
func (b *Bridge) LocalAddr() net.Addr {
	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

func (b *Bridge) handleMute(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		log.Warn().Str("module", "osc").Str("addr", msg.Address).Msg("mute without argument")
		return
	}
	muted, ok := asBool(msg.Arguments[0])
	if !ok {
		log.Warn().Str("module", "osc").Interface("arg", msg.Arguments[0]).Msg("mute argument not boolean")
		return
	}
	l := b.listener()
	if l == nil {
		return
	}
	log.Debug().Str("module", "osc").Bool("muted", muted).Msg("mute reported")
	l.OnMute(muted)
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int32:
		return x != 0, true
	case int64:
		return x != 0, true
	case float32:
		return x != 0, true
	default:
		return false, false
	}
}
