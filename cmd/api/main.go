package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harborlight/henry/backend/internal/config"
	"github.com/harborlight/henry/backend/internal/handler"
	"github.com/harborlight/henry/backend/internal/service/ai"
	"github.com/harborlight/henry/backend/internal/service/conversation"
	"github.com/harborlight/henry/backend/internal/service/session"
	"github.com/harborlight/henry/backend/internal/storage/kv"
	"github.com/harborlight/henry/backend/internal/storage/sqlite"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, continuing with system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	cache := openCache(cfg.Storage)
	archive := openArchive(cfg.Storage)

	var aiClient ai.Client
	if cfg.AI.Enabled() {
		svc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize AI service, continuing with fallback replies only")
		} else {
			aiClient = svc
			log.Info().Msg("AI service initialized")
		}
	} else {
		log.Info().Msg("Ark credentials not configured, AI replies disabled")
	}

	factory := &session.Factory{
		Cache:       cache,
		Archive:     archive,
		AI:          aiClient,
		TypingDelay: cfg.Chat.TypingDelay,
	}
	manager := session.NewManager()

	router := handler.NewRouter(manager, factory)
	startServer(ctx, cfg.Server, router)
}

func openCache(cfg config.StorageConfig) kv.Store {
	if cfg.RedisURL != "" {
		cache, err := kv.NewRedis(cfg.RedisURL)
		if err == nil {
			return cache
		}
		log.Warn().Err(err).Msg("redis unavailable, falling back to file cache")
	}

	cache, err := kv.NewFile(cfg.CachePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local cache")
	}
	return cache
}

func openArchive(cfg config.StorageConfig) conversation.Archive {
	if cfg.SQLitePath == "" {
		log.Info().Msg("remote conversation archive disabled")
		return nil
	}

	repo, err := sqlite.NewRepo(cfg.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("conversation archive unavailable, continuing local-only")
		return nil
	}
	return repo
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("henry engine listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
