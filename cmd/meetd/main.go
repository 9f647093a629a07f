package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/meetlink/internal/adapters/http"
	"github.com/dkeye/meetlink/internal/adapters/media"
	"github.com/dkeye/meetlink/internal/adapters/rest"
	"github.com/dkeye/meetlink/internal/adapters/rtc"
	"github.com/dkeye/meetlink/internal/adapters/ws"
	"github.com/dkeye/meetlink/internal/app/conn"
	"github.com/dkeye/meetlink/internal/app/session"
	"github.com/dkeye/meetlink/internal/config"
	"github.com/dkeye/meetlink/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	sess, err := newSession(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session")
	}
	if err := sess.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router.SetupRouter(cfg, sess),
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("room", cfg.Room).Msg("meetlink control api started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := sess.Leave(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("leave failed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Exited gracefully")
}

func newSession(cfg *config.Config) (*session.Session, error) {
	room, err := domain.ParseRoomID(cfg.Room)
	if err != nil {
		return nil, err
	}
	user, err := domain.ParseUserID(cfg.UserID)
	if err != nil {
		return nil, err
	}
	instance := uuid.New()

	factory, err := rtc.NewFactory(rtc.ConfigFromURLs(cfg.ICEServers))
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		Room:     room,
		User:     user,
		Instance: instance,
		Dialer: ws.NewDialer(ws.Options{
			Instance:  instance.String(),
			WriteWait: cfg.WriteWait,
			ReadLimit: cfg.ReadLimit,
		}),
		Conn: conn.Options{
			Endpoint:       cfg.Endpoint,
			Credential:     cfg.Token,
			PingPeriod:     cfg.PingPeriod,
			PongTimeout:    cfg.PongTimeout,
			ReconnectDelay: cfg.ReconnectDelay,
			SendBuffer:     cfg.SendBuffer,
		},
		Capture: media.NewSource(media.Options{
			Audio:           cfg.Media.Audio,
			Video:           cfg.Media.Video,
			Screen:          cfg.Media.Screen,
			StreamID:        string(user),
			SilenceInterval: media.DefaultSilenceInterval,
		}),
		Factory:              factory,
		Media:                session.MediaOptions{Audio: cfg.Media.Audio, Video: cfg.Media.Video},
		MaxPendingCandidates: cfg.MaxPendingCandidates,
		SignalRateLimit:      cfg.SignalRateLimit,
		SignalRateInterval:   cfg.SignalRateInterval,
	}
	if cfg.APIBase != "" {
		opts.API = rest.NewClient(rest.Options{BaseURL: cfg.APIBase, Token: cfg.Token})
	}
	return session.New(opts)
}
