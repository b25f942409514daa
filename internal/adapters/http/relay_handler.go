package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Translate/internal/adapters/oscbridge"
	"github.com/dkeye/Translate/internal/adapters/relay"
	"github.com/dkeye/Translate/internal/app"
	"github.com/dkeye/Translate/internal/app/reconnect"
	"github.com/dkeye/Translate/internal/config"
	"github.com/dkeye/Translate/internal/core"
	"github.com/dkeye/Translate/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RelayHandler struct {
	cfg      *config.Config
	reg      *app.Registry
	bridge   *oscbridge.Bridge
	factory  core.UpstreamFactory
	relayCfg relay.Config
}

func NewRelayHandler(cfg *config.Config, reg *app.Registry, bridge *oscbridge.Bridge, factory core.UpstreamFactory) *RelayHandler {
	return &RelayHandler{
		cfg:      cfg,
		reg:      reg,
		bridge:   bridge,
		factory:  factory,
		relayCfg: RelayConfig(cfg),
	}
}

// RelayConfig maps the relay and reconnect sections onto relay.Config.
func RelayConfig(cfg *config.Config) relay.Config {
	rc := relay.DefaultConfig()
	if cfg.Relay.HeartbeatInterval > 0 {
		rc.HeartbeatInterval = cfg.Relay.HeartbeatInterval
	}
	if cfg.Relay.ReceiveTimeout > 0 {
		rc.ReceiveTimeout = cfg.Relay.ReceiveTimeout
	}
	if cfg.Relay.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.Relay.WriteTimeout
	}
	if cfg.Relay.VideoQueueSize > 0 {
		rc.VideoQueueSize = cfg.Relay.VideoQueueSize
	}
	if cfg.Relay.SendQueueSize > 0 {
		rc.SendQueueSize = cfg.Relay.SendQueueSize
	}
	rc.Reconnect = reconnect.Policy{
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		Factor:       cfg.Reconnect.Factor,
	}
	return rc
}

// Serve upgrades the request and runs a relay until the client leaves.
func (h *RelayHandler) Serve(ctx context.Context, c *gin.Context) {
	params := domain.DefaultSessionParams()
	if err := c.ShouldBindQuery(&params); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("bad relay params")
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_params"})
		return
	}

	sid := domain.SessionID(uuid.NewString())
	log.Info().
		Str("module", "adapters.http").
		Str("sid", string(sid)).
		Str("client", c.GetString("client_token")).
		Msg("new relay connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	if h.cfg.ReadLimit > 0 {
		ws.SetReadLimit(h.cfg.ReadLimit)
	}

	if h.cfg.Upstream.APIKey == "" {
		log.Error().Str("module", "adapters.http").Str("sid", string(sid)).Msg("api key not configured")
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "API key not configured")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	var bridge relay.Bridge
	if h.bridge != nil {
		if err := h.bridge.Start(ctx); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("mute listener unavailable")
		}
		bridge = h.bridge
	}

	sess := domain.NewSession(sid, params)
	sup := relay.New(ws, *sess, h.factory, bridge, h.relayCfg)

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.reg.Bind(sup, cancel)
	defer h.reg.Unbind(sup)

	if err := sup.Run(rctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("relay ended")
	}
}
