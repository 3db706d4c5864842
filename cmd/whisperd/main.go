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

	"github.com/Erikcwill/sussuros-foundry/internal/adapters/capture"
	"github.com/Erikcwill/sussuros-foundry/internal/adapters/channel"
	"github.com/Erikcwill/sussuros-foundry/internal/adapters/directory"
	router "github.com/Erikcwill/sussuros-foundry/internal/adapters/http"
	"github.com/Erikcwill/sussuros-foundry/internal/adapters/relay"
	"github.com/Erikcwill/sussuros-foundry/internal/adapters/rtc"
	"github.com/Erikcwill/sussuros-foundry/internal/app"
	"github.com/Erikcwill/sussuros-foundry/internal/config"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	localID := domain.LocalID(cfg.UserID)
	log.Info().Str("local_id", string(localID)).Str("username", cfg.Username).Msg("whisper daemon starting")

	rl, err := relay.Dial(ctx, cfg.RelayURL, localID)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RelayURL).Msg("relay dial failed")
	}
	defer rl.Close()

	mic, err := capture.NewMicrophone()
	if err != nil {
		log.Fatal().Err(err).Msg("microphone setup failed")
	}

	mirror := channel.NewMirror()
	dir := directory.NewMemory(localID)

	captures := app.NewCaptureManager(mic)
	broadcast := app.NewBroadcastCoordinator(mirror, localID, cfg.Exclusive)
	factory := rtc.NewFactory(rtc.Config(cfg.STUNServers))
	mgr := app.NewManager(ctx, localID, rl, factory, captures, broadcast)
	mgr.SetNotifier(func(msg string) {
		log.Warn().Str("module", "main").Msg(msg)
	})

	r := router.SetupRouter(cfg, mgr, dir, mirror)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("whisper control API started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	// Notify every peer before the relay goes away.
	mgr.CloseAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
