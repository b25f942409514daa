// Package relay runs one browser connection: it demultiplexes client frames,
// drives the upstream translation session and recovers it after failures.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Translate/internal/adapters/upstream"
	"github.com/dkeye/Translate/internal/app/reconnect"
	"github.com/dkeye/Translate/internal/core"
	"github.com/dkeye/Translate/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrGaveUp       = errors.New("relay: upstream unavailable")
	ErrStopped      = errors.New("relay: session stopped")
)

type State int32

const (
	StateNoUpstream State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "no_upstream"
	}
}

type Config struct {
	HeartbeatInterval time.Duration
	ReceiveTimeout    time.Duration
	WriteTimeout      time.Duration
	VideoQueueSize    int
	SendQueueSize     int
	Reconnect         reconnect.Policy
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 25 * time.Second,
		ReceiveTimeout:    60 * time.Second,
		WriteTimeout:      5 * time.Second,
		VideoQueueSize:    64,
		SendQueueSize:     256,
		Reconnect:         reconnect.DefaultPolicy(),
	}
}

// Bridge is the part of the overlay bridge a session uses.
type Bridge interface {
	core.OverlaySink
	SetLineBreaks(enabled bool)
	SetMuteListener(l core.MuteListener) (revoke func())
}

type inbound struct {
	kind int
	data []byte
}

// link is one upstream connection and the tasks bound to it.
type link struct {
	up     core.Upstream
	cancel context.CancelFunc
	done   chan error
	video  chan []byte
}

type Supervisor struct {
	cfg     Config
	conn    core.ClientConnection
	factory core.UpstreamFactory
	bridge  Bridge
	machine *reconnect.Machine
	logger  zerolog.Logger
	started time.Time

	send    chan core.Frame
	inbound chan inbound
	mute    chan bool
	stopped chan struct{}
	state   atomic.Int32

	retry *time.Timer
	muted atomic.Bool

	mu      sync.Mutex
	session domain.Session
	link    *link
	usage   domain.UsageStats
}

// New builds a supervisor for an accepted client connection. bridge may be nil.
func New(conn core.ClientConnection, sess domain.Session, factory core.UpstreamFactory, bridge Bridge, cfg Config) *Supervisor {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 1
	}
	if cfg.VideoQueueSize <= 0 {
		cfg.VideoQueueSize = 1
	}
	return &Supervisor{
		cfg:     cfg,
		conn:    conn,
		factory: factory,
		bridge:  bridge,
		machine: reconnect.NewMachine(cfg.Reconnect),
		logger:  log.With().Str("module", "relay").Str("sid", string(sess.ID)).Logger(),
		started: time.Now(),
		send:    make(chan core.Frame, cfg.SendQueueSize),
		inbound: make(chan inbound),
		mute:    make(chan bool, 1),
		stopped: make(chan struct{}),
		session: sess,
	}
}

var _ core.RelaySession = (*Supervisor)(nil)

func (s *Supervisor) ID() domain.SessionID { return s.session.ID }

func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) setState(st State) {
	if prev := State(s.state.Swap(int32(st))); prev != st {
		s.logger.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("state")
	}
}

func (s *Supervisor) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Supervisor) Snapshot() domain.RelaySnapshot {
	s.mu.Lock()
	snap := domain.RelaySnapshot{
		Session:   s.session,
		StartedAt: s.started,
		Usage:     s.usage,
	}
	if s.link != nil {
		snap.Usage.Merge(s.link.up.Usage())
	}
	s.mu.Unlock()

	rs := s.machine.State()
	snap.State = s.State().String()
	snap.Muted = s.muted.Load()
	snap.Attempts = rs.Attempts
	if !rs.LastAttempt.IsZero() {
		t := rs.LastAttempt
		snap.LastAttempt = &t
	}
	return snap
}

// Run serves the client until it disconnects, ctx ends or the upstream is
// given up on. The client connection is closed on return.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(s.stopped)

	sess := s.Session()
	if s.bridge != nil {
		s.bridge.SetLineBreaks(sess.LineBreaksEnabled)
		if sess.OSCMuteControl {
			revoke := s.bridge.SetMuteListener(s)
			defer revoke()
		}
	}
	s.logger.Info().
		Str("language", sess.TargetLanguage).
		Bool("audio", sess.AudioEnabled).
		Bool("osc", sess.SendToOSC).
		Msg("relay started")

	go s.writePump(ctx)
	go s.readPump(ctx)
	go s.heartbeat(ctx)

	err := s.loop(ctx)
	s.shutdown(err)
	return err
}

func (s *Supervisor) loop(ctx context.Context) error {
	idle := time.NewTimer(s.cfg.ReceiveTimeout)
	defer idle.Stop()
	defer s.stopRetry()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-s.inbound:
			if !ok {
				s.logger.Info().Msg("client disconnected")
				return nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.ReceiveTimeout)
			if err := s.handleInbound(ctx, msg); err != nil {
				return err
			}

		case <-idle.C:
			s.logger.Debug().Dur("timeout", s.cfg.ReceiveTimeout).Msg("receive idle")
			idle.Reset(s.cfg.ReceiveTimeout)

		case err := <-s.linkDone():
			if err := s.recover(ctx, err); err != nil {
				return err
			}

		case <-s.retryC():
			s.retry = nil
			if err := s.connect(ctx); err != nil {
				if err := s.recover(ctx, err); err != nil {
					return err
				}
			}

		case muted := <-s.mute:
			s.applyMute(muted)
		}
	}
}

func (s *Supervisor) linkDone() <-chan error {
	if s.link == nil {
		return nil
	}
	return s.link.done
}

func (s *Supervisor) retryC() <-chan time.Time {
	if s.retry == nil {
		return nil
	}
	return s.retry.C
}

func (s *Supervisor) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// connect builds a fresh upstream from the current session and starts its reader
// and video drainer.
func (s *Supervisor) connect(ctx context.Context) error {
	s.setState(StateConnecting)
	sess := s.Session()

	var overlay core.OverlaySink
	if sess.SendToOSC && s.bridge != nil {
		overlay = s.bridge
	}
	up := s.factory.NewUpstream(sess, overlay)
	if err := up.Connect(ctx); err != nil {
		_ = up.Close()
		return err
	}

	if s.machine.State().Attempts > 0 {
		s.logger.Info().Int("attempts", s.machine.State().Attempts).Msg("upstream recovered")
	}
	s.machine.Reset()

	lctx, lcancel := context.WithCancel(ctx)
	l := &link{
		up:     up,
		cancel: lcancel,
		done:   make(chan error, 1),
		video:  make(chan []byte, s.cfg.VideoQueueSize),
	}
	go func() { l.done <- up.HandleServerMessages(lctx, s, s) }()
	go s.drainVideo(lctx, l)

	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
	if s.muted.Load() {
		up.OnMute(true)
	}
	s.setState(StateStreaming)
	return nil
}

// closeLink cancels the reader and drainer and closes the upstream.
func (s *Supervisor) closeLink() {
	s.mu.Lock()
	l := s.link
	s.link = nil
	if l != nil {
		s.usage.Merge(l.up.Usage())
	}
	s.mu.Unlock()
	if l == nil {
		return
	}
	l.cancel()
	close(l.video)
	_ = l.up.Close()
}

// recover handles an upstream failure. It returns nil when a retry was scheduled
// and a terminal error otherwise.
func (s *Supervisor) recover(ctx context.Context, cause error) error {
	s.closeLink()
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(cause, upstream.ErrMissingCredential) {
		s.logger.Error().Err(cause).Msg("upstream credential missing")
		s.closeClient(websocket.ClosePolicyViolation, "API key not configured")
		return cause
	}

	d := s.machine.Next(upstream.CloseCode(cause))
	if !d.Retry() {
		s.logger.Error().Err(cause).Int("code", d.Code).Msg("upstream failed, giving up")
		s.closeClient(websocket.CloseInternalServerErr, "upstream unavailable")
		return fmt.Errorf("%w: %v", ErrGaveUp, cause)
	}
	s.logger.Warn().
		Err(cause).
		Int("code", d.Code).
		Int("attempt", d.Attempt).
		Dur("delay", d.Delay).
		Msg("upstream failed, retrying")
	s.setState(StateBackoff)
	s.stopRetry()
	s.retry = time.NewTimer(d.Delay)
	return nil
}

// sendFailed prefers the reader's error when it already ended, since it
// carries the service close code.
func (s *Supervisor) sendFailed(ctx context.Context, err error) error {
	if s.link != nil {
		select {
		case rerr := <-s.link.done:
			if rerr != nil {
				err = rerr
			}
		default:
		}
	}
	return s.recover(ctx, err)
}

func (s *Supervisor) shutdown(cause error) {
	s.setState(StateTerminated)
	s.closeLink()
	if cause == nil {
		s.closeClient(websocket.CloseNormalClosure, "")
	}
	_ = s.conn.Close()
	s.logger.Info().Err(cause).Msg("relay stopped")
}

func (s *Supervisor) closeClient(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		s.logger.Debug().Err(err).Msg("close frame")
	}
}
