package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Translate/internal/adapters/oscbridge"
	"github.com/dkeye/Translate/internal/app"
	"github.com/dkeye/Translate/internal/config"
	"github.com/dkeye/Translate/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the page, the relay socket and the REST endpoints.
// bridge may be nil when overlay integration is not wanted.
func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	reg *app.Registry,
	bridge *oscbridge.Bridge,
	factory core.UpstreamFactory,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TranslateSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	relays := NewRelayHandler(cfg, reg, bridge, factory)
	limiter := NewConnectLimiter(cfg.Relay.ConnectLimit, cfg.Relay.ConnectInterval)
	r.GET("/ws", limiter.Middleware(), func(c *gin.Context) {
		relays.Serve(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": reg.Snapshots()})
	})

	return r
}
