package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway"
	"github.com/Wyydra/yajanus/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yajanus/internal/config"
	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/Wyydra/yajanus/internal/core/service"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	modes := flag.String("modes", "", "comma separated transport order, e.g. ws,http")
	plugin := flag.String("plugin", "", "plugin to attach (overrides call.plugin)")
	body := flag.String("body", `{"audio":true,"video":true}`, "JSON body sent with the offer")
	flag.Parse()

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if *modes != "" {
		parsed, err := config.ParseModes(strings.Split(*modes, ","))
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -modes")
		}
		cfg.Connection.Modes = parsed
	}
	if *plugin != "" {
		cfg.Call.Plugin = *plugin
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	var msg any
	if err := json.Unmarshal([]byte(*body), &msg); err != nil {
		log.Fatal().Err(err).Msg("Invalid -body")
	}

	manager := service.NewConnectionManager(gateway.NewFactory(cfg), cfg.Connection.Modes)
	manager.OnAny(func(ev domain.Event) {
		log.Debug().Str("kind", string(ev.Kind)).Str("handle_id", ev.Handle.String()).Str("reason", ev.Reason).RawJSON("data", rawOrNull(ev.Data)).Msg("Gateway event")
	})
	lost := make(chan struct{}, 1)
	manager.On(domain.EventDisconnected, func(ev domain.Event) {
		select {
		case lost <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := manager.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	log.Info().Str("session_id", session.ID.String()).Str("mode", session.Mode.String()).Msg("Session ready")

	calls := service.NewCallService(manager, func() (port.MediaEngine, error) {
		peer, err := pion.NewPeer(pion.Config{})
		if err != nil {
			return nil, err
		}
		return peer, nil
	})

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	call, err := calls.Start(ctx, cfg.Call.Plugin, msg)
	cancel()
	if err != nil {
		shutdown(manager)
		log.Fatal().Err(err).Str("plugin", cfg.Call.Plugin).Msg("Failed to start call")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Hanging up...")
	case <-call.HungUp():
		log.Info().Msg("Call ended by gateway")
	case <-lost:
		log.Warn().Msg("Session lost")
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := call.Hangup(ctx); err != nil {
		log.Warn().Err(err).Msg("Hangup failed")
	}
	cancel()
	shutdown(manager)
	log.Info().Msg("Client exited")
}

func shutdown(manager *service.ConnectionManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Disconnect failed")
	}
}

func rawOrNull(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
