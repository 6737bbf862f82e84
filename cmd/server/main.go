package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/config"
	"github.com/awpearlm/rummikub-backend-sub007/internal/gateway"
	"github.com/awpearlm/rummikub-backend-sub007/internal/reconnect"
	"github.com/awpearlm/rummikub-backend-sub007/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build store")
	}
	defer closeStore()

	hub := gateway.NewHub(hubConfig(cfg))

	var bus *gateway.NATSPublisher
	if cfg.NATS.URL != "" {
		bus, err = gateway.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			// The bus is a mirror; the game server runs without it.
			log.Error().Err(err).Msg("NATS unavailable, continuing without event mirror")
		} else {
			defer bus.Close()
		}
	}

	svc := gateway.NewService(gateway.Config{
		TurnDuration: cfg.TurnDuration(),
		Reconnect: reconnect.Config{
			GraceDuration: cfg.GraceDuration(),
			VoteTimeout:   cfg.VoteTimeout(),
		},
		DebugHand:    cfg.Game.DebugHand,
		BotThinkTime: 1500 * time.Millisecond,
	}, clockwork.NewRealClock(), st, &gateway.FanOut{Hub: hub, Bus: bus})
	hub.SetService(svc)

	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
	}).Handler(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("game server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (store.GameStore, func(), error) {
	if cfg.Store.PostgresDSN == "" {
		log.Info().Msg("no postgres DSN configured, using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func hubConfig(cfg *config.Config) gateway.HubConfig {
	hc := gateway.DefaultHubConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowed := map[string]bool{}
		for _, o := range cfg.Server.AllowedOrigins {
			allowed[o] = true
		}
		hc.CheckOrigin = func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")] || allowed["*"]
		}
	}
	return hc
}
