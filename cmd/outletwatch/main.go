// Command outletwatch is a headless monitoring agent for smart-outlet
// hardware. It keeps one telemetry channel open per session, forwards
// alerts to a notification sink, and serves a small local status API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/outletwatch/telemetry/config"
	"github.com/outletwatch/telemetry/src/agent"
	"github.com/outletwatch/telemetry/src/api"
	"github.com/outletwatch/telemetry/src/channel"
	"github.com/outletwatch/telemetry/src/credstore"
	"github.com/outletwatch/telemetry/src/notify"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.FromEnv()

	store := buildStore(logger)
	seedToken(cfg, store, logger)

	ch := channel.New(channel.Options{
		Endpoint: cfg.WSBase,
		TokenKey: cfg.TokenKey,
	}, store, buildSink(cfg, logger), logger)

	a := agent.New(ch, logger)

	if err := ch.Open(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("cannot open telemetry channel")
	}

	app := fiber.New()
	a.RegisterRoutes(app.Group("/"))
	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logger.Fatal().Err(err).Msg("status server failed")
		}
	}()
	logger.Info().Str("addr", cfg.ListenAddr).Msg("status API listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("status server shutdown error")
	}
	if err := ch.Close(); err != nil {
		logger.Error().Err(err).Msg("channel close error")
	}
}

// buildStore prefers the Redis credential store so the token survives agent
// restarts. If Redis is unreachable the agent runs with an in-memory store.
func buildStore(logger zerolog.Logger) credstore.Store {
	rs := credstore.NewRedisFromEnv(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory credential store")
		return credstore.NewMemory()
	}

	logger.Info().Str("redis_addr", rs.Addr()).Msg("redis credential store connected")
	return rs
}

// seedToken makes a bearer token available before the channel opens: a
// static token wins, otherwise a login is attempted when credentials are
// configured. An already-stored token is left alone.
func seedToken(cfg *config.Config, store credstore.Store, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.AuthToken != "" {
		if err := store.Set(ctx, cfg.TokenKey, cfg.AuthToken); err != nil {
			logger.Error().Err(err).Msg("static token seed failed")
		}
		return
	}

	if existing, err := store.Get(ctx, cfg.TokenKey); err == nil && existing != "" {
		return
	}

	if cfg.AuthEmail == "" || cfg.AuthPassword == "" {
		return
	}
	client := api.NewAuthClient(cfg.APIBase, logger)
	if err := client.SeedToken(ctx, store, cfg.TokenKey, cfg.AuthEmail, cfg.AuthPassword); err != nil {
		logger.Error().Err(err).Msg("login failed, channel will stay disconnected")
	}
}

// buildSink picks the webhook sink when configured, the log sink otherwise.
func buildSink(cfg *config.Config, logger zerolog.Logger) notify.Sink {
	if cfg.WebhookURL == "" {
		return notify.NewLogSink(logger)
	}
	sink, err := notify.NewWebhookSink(cfg.WebhookURL)
	if err != nil {
		logger.Warn().Err(err).Msg("webhook sink unavailable, logging alerts instead")
		return notify.NewLogSink(logger)
	}
	logger.Info().Str("webhook_url", cfg.WebhookURL).Msg("alert webhook configured")
	return sink
}
