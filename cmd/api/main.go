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
	"github.com/shinyyama/bookloop-backend/internal/config"
	"github.com/shinyyama/bookloop-backend/internal/db"
	appmw "github.com/shinyyama/bookloop-backend/internal/middleware"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/server"
)

// Set with -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect error")
	}
	if err := db.Migrate(conn); err != nil {
		logger.Fatal().Err(err).Msg("auto migrate error")
	}
	logger.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("auth init error")
	}

	hub := realtime.NewHub(cfg.SubscriberBuffer, logger)
	deps := server.Deps{
		DB:              conn,
		Verifier:        verifier,
		Hub:             hub,
		GatewayTimeout:  cfg.GatewayTimeout,
		CORSAllowSuffix: cfg.CORSAllowSuffix,
		Logger:          logger,
		SHA:             gitSHA,
		BuildTime:       buildTime,
	}

	if cfg.RedisURL != "" {
		relay, err := realtime.NewRedisRelay(ctx, cfg.RedisURL, cfg.RedisChannelPrefix, hub, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer relay.Close()
		if err := relay.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("redis subscribe failed")
		}
		deps.Publisher = relay
		deps.Broker = relay
		logger.Info().Str("prefix", cfg.RedisChannelPrefix).Msg("redis relay started")
	}

	srv := server.New(deps)
	addr := ":" + cfg.Port

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("git_sha", gitSHA).Msg("starting server")
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}

func newVerifier(ctx context.Context, cfg *config.Config) (appmw.TokenVerifier, error) {
	if cfg.AuthProvider == "jwt" {
		return appmw.NewJWTVerifier(cfg.JWTSecret), nil
	}
	return appmw.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
}
