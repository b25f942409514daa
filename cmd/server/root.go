package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Translate/internal/adapters/http"
	"github.com/dkeye/Translate/internal/adapters/oscbridge"
	"github.com/dkeye/Translate/internal/adapters/upstream"
	"github.com/dkeye/Translate/internal/app"
	"github.com/dkeye/Translate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "translate-relay",
	Short: "Relay browser audio and video to a realtime translation service",
	Long: `translate-relay accepts a browser WebSocket, forwards its audio and video
to the realtime translation service and streams translated text and speech back.
Translated text is mirrored into the avatar chatbox over OSC, and the avatar's
self-mute toggles audio forwarding.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().String("config-env", "", "config environment, reads config/config.<env>.yaml (default $CONFIG_ENV or dev)")
	rootCmd.Flags().IntP("port", "p", 19023, "HTTP listen port")
	rootCmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Upstream.APIKey == "" {
		log.Warn().Msg("DASHSCOPE_API_KEY is not set, relay connections will be refused")
	}

	bridge := oscbridge.New(oscbridge.Config{
		SendHost:   cfg.OSC.SendHost,
		SendPort:   cfg.OSC.SendPort,
		ListenHost: cfg.OSC.ListenHost,
		ListenPort: cfg.OSC.ListenPort,
		MaxLength:  cfg.OSC.MaxLength,
	})
	factory := upstream.Factory{Config: upstream.Config{
		URL:              cfg.Upstream.URL,
		Model:            cfg.Upstream.Model,
		APIKey:           cfg.Upstream.APIKey,
		ConnectTimeout:   cfg.Upstream.ConnectTimeout,
		WriteTimeout:     cfg.Upstream.WriteTimeout,
		InputSampleRate:  cfg.Upstream.InputSampleRate,
		OutputSampleRate: cfg.Upstream.OutputSampleRate,
		SilenceDuration:  cfg.Upstream.SilenceDuration,
	}}
	reg := app.NewRegistry()

	r := router.SetupRouter(ctx, cfg, reg, bridge, factory)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Translate relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error().Err(err).Msg("server error")
		return err
	}

	log.Info().Msg("Shutting down")
	if n := reg.CancelAll(); n > 0 {
		log.Info().Int("relays", n).Msg("closing live relays")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
