// Package upstream speaks the realtime translation service protocol over a
// gorilla/websocket connection.
package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Translate/internal/core"
	"github.com/dkeye/Translate/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL              string
	Model            string
	APIKey           string
	ConnectTimeout   time.Duration
	WriteTimeout     time.Duration
	InputSampleRate  int
	OutputSampleRate int
	SilenceDuration  time.Duration
}

type AudioState int32

const (
	AudioForwarding AudioState = iota
	AudioSuspended
)

// Client owns a single upstream connection. It is not reused after Close;
// the supervisor builds a fresh one per attempt.
type Client struct {
	cfg     Config
	sid     domain.SessionID
	dialer  *websocket.Dialer
	overlay core.OverlaySink

	connected  atomic.Bool
	audioState atomic.Int32 // Zero by default (AudioForwarding)
	closeOnce  sync.Once

	writeMu sync.Mutex

	mu          sync.Mutex
	conn        *websocket.Conn
	language    string
	voice       string
	audio       bool
	usage       domain.UsageStats
	muteStarted time.Time
}

// NewClient builds an unconnected client. A nil overlay disables chatbox output.
func NewClient(cfg Config, sess domain.Session, overlay core.OverlaySink) *Client {
	return &Client{
		cfg:      cfg,
		sid:      sess.ID,
		dialer:   websocket.DefaultDialer,
		overlay:  overlay,
		language: sess.TargetLanguage,
		voice:    sess.Voice,
		audio:    sess.AudioEnabled,
	}
}

var _ core.Upstream = (*Client)(nil)

// Factory builds clients from one shared Config.
type Factory struct {
	Config Config
}

func (f Factory) NewUpstream(sess domain.Session, overlay core.OverlaySink) core.Upstream {
	return NewClient(f.Config, sess, overlay)
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) AudioState() AudioState { return AudioState(c.audioState.Load()) }

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("upstream url: %w", err)
	}
	if c.cfg.Model != "" {
		q := u.Query()
		q.Set("model", c.cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return ErrMissingCredential
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		c.connected.Store(false)
		if resp != nil {
			return &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("upstream dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	log.Info().Str("module", "upstream").Str("sid", string(c.sid)).Str("model", c.cfg.Model).Int("output_rate", c.cfg.OutputSampleRate).Msg("connected")

	if err := c.configure(); err != nil {
		c.connected.Store(false)
		_ = conn.Close()
		return err
	}
	return nil
}

type translationConfig struct {
	Language string `json:"language"`
}

type sessionConfig struct {
	Modalities        []string          `json:"modalities"`
	Voice             string            `json:"voice,omitempty"`
	InputAudioFormat  string            `json:"input_audio_format"`
	OutputAudioFormat string            `json:"output_audio_format"`
	Translation       translationConfig `json:"translation"`
}

type sessionUpdateEvent struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type appendEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio,omitempty"`
	Image   string `json:"image,omitempty"`
}

func newEventID() string { return "event_" + uuid.NewString() }

func (c *Client) sessionConfig() sessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := sessionConfig{
		Modalities:        []string{"text"},
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Translation:       translationConfig{Language: c.language},
	}
	if c.audio {
		cfg.Modalities = []string{"text", "audio"}
		cfg.Voice = c.voice
	}
	return cfg
}

func (c *Client) configure() error {
	cfg := c.sessionConfig()
	if err := c.send(sessionUpdateEvent{EventID: newEventID(), Type: "session.update", Session: cfg}); err != nil {
		return fmt.Errorf("session.update: %w", err)
	}
	log.Info().
		Str("module", "upstream").
		Str("sid", string(c.sid)).
		Str("language", cfg.Translation.Language).
		Strs("modalities", cfg.Modalities).
		Str("voice", cfg.Voice).
		Msg("session configured")
	return nil
}

// UpdateSession merges u and re-sends the configuration. The merge is kept even
// when the client is disconnected so the next Connect picks it up.
func (c *Client) UpdateSession(u domain.SessionUpdate) error {
	c.mu.Lock()
	if u.TargetLanguage != nil {
		c.language = *u.TargetLanguage
	}
	if u.Voice != nil {
		c.voice = *u.Voice
	}
	if u.AudioEnabled != nil {
		c.audio = *u.AudioEnabled
	}
	c.mu.Unlock()

	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.configure()
}

// SendAudioChunk forwards PCM while audio is not suspended. Empty chunks are
// dropped.
func (c *Client) SendAudioChunk(pcm []byte) error {
	if len(pcm) == 0 || !c.connected.Load() || c.AudioState() == AudioSuspended {
		return nil
	}
	return c.send(appendEvent{
		EventID: newEventID(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *Client) SendImageFrame(jpeg []byte) error {
	if len(jpeg) == 0 {
		return ErrEmptyImage
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.send(appendEvent{
		EventID: newEventID(),
		Type:    "input_image_buffer.append",
		Image:   base64.StdEncoding.EncodeToString(jpeg),
	})
}

// OnMute toggles audio forwarding. Muting sends one block of silence so the
// service closes the current utterance. Repeated identical toggles do nothing.
func (c *Client) OnMute(muted bool) {
	if muted {
		if !c.audioState.CompareAndSwap(int32(AudioForwarding), int32(AudioSuspended)) {
			return
		}
		c.mu.Lock()
		c.muteStarted = time.Now()
		c.mu.Unlock()
		log.Info().Str("module", "upstream").Str("sid", string(c.sid)).Msg("audio suspended")
		if err := c.sendSilence(); err != nil {
			log.Error().Err(err).Str("module", "upstream").Str("sid", string(c.sid)).Msg("silence flush")
		}
		return
	}
	if c.audioState.CompareAndSwap(int32(AudioSuspended), int32(AudioForwarding)) {
		log.Info().Str("module", "upstream").Str("sid", string(c.sid)).Msg("audio resumed")
	}
}

func (c *Client) sendSilence() error {
	if !c.connected.Load() {
		return nil
	}
	samples := int(float64(c.cfg.InputSampleRate) * c.cfg.SilenceDuration.Seconds())
	if samples <= 0 {
		return nil
	}
	silence := make([]byte, samples*2)
	return c.send(appendEvent{
		EventID: newEventID(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(silence),
	})
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("upstream marshal: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.connected.Store(false)
			return fmt.Errorf("upstream set deadline: %w", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("upstream write: %w", err)
	}
	return nil
}

func (c *Client) Usage() domain.UsageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Close never fails; closing a dead or never-opened connection is a no-op.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Str("module", "upstream").Str("sid", string(c.sid)).Msg("close")
		}
		log.Info().Str("module", "upstream").Str("sid", string(c.sid)).Msg("closed")
	})
	return nil
}
