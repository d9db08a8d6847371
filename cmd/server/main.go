package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"memorymatch/internal/audio"
	"memorymatch/internal/config"
	"memorymatch/internal/game"
	"memorymatch/internal/server"
	"memorymatch/internal/session"
	"memorymatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	modes, err := config.LoadModes(cfg.TuningPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.TuningPath).Msg("load modes")
	}
	registry := game.NewRegistry()
	for _, m := range modes {
		registry.Register(m)
	}

	var cue game.Cue
	if cfg.AudioEnabled {
		player := audio.NewPlayer(cfg.AudioVolume, log.Logger)
		if err := player.Init(); err != nil {
			log.Warn().Err(err).Msg("audio unavailable, continuing silently")
		} else {
			defer player.Close()
			cue = player
		}
	}

	mgr := session.NewManager(registry, store, cue, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go mgr.Run(ctx, cfg.TickInterval)
	go mgr.CleanupLoop(ctx, cfg.CleanupInterval, cfg.IdleTimeout)

	srv := server.New(registry, mgr, server.Options{
		Secret:   []byte(cfg.JWTSecret),
		TokenTTL: cfg.TokenTTL,
		Logger:   log.Logger,
	})
	httpSrv := &http.Server{Addr: cfg.Addr(), Handler: srv}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Int("modes", len(modes)).Msg("starting memorymatch")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := mgr.SuspendAll(); err != nil {
		log.Error().Err(err).Msg("suspend sessions")
	}
}
