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

	"github.com/dkeye/roomsync/internal/adapters/authkc"
	"github.com/dkeye/roomsync/internal/adapters/blobhttp"
	"github.com/dkeye/roomsync/internal/adapters/httpgw"
	"github.com/dkeye/roomsync/internal/adapters/natsrt"
	"github.com/dkeye/roomsync/internal/adapters/pgstore"
	"github.com/dkeye/roomsync/internal/config"
	"github.com/dkeye/roomsync/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	auth, err := authkc.New(ctx, cfg.AuthURL, cfg.AuthRealm, cfg.AuthIssuer)
	if err != nil {
		log.Fatal().Err(err).Msg("auth authority setup")
	}
	defer auth.Close()

	if token := os.Getenv("ROOMSYNC_TOKEN"); token != "" {
		if err := auth.SetToken(token); err != nil {
			log.Error().Err(err).Msg("initial token rejected")
		}
	}

	db, err := pgstore.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database open")
	}
	defer db.Close()

	rt, err := natsrt.Connect(cfg.NatsURL, "roomsync")
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer rt.Close()

	store := natsrt.NewPublishingStore(db, rt)
	resolver := core.NewProfileResolver(store)
	sessions := core.NewSessionStore(auth, resolver, core.WithInitTimeout(cfg.InitTimeout))

	opts := []core.EngineOption{}
	if cfg.BlobBaseURL != "" {
		opts = append(opts, core.WithBlobStorage(blobhttp.New(cfg.BlobBaseURL)))
	}
	engine := core.NewEngine(ctx, sessions, store, rt, opts...)
	defer engine.Close()

	engine.Init(ctx)

	r := httpgw.SetupRouter(ctx, cfg, engine)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("roomsync server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
