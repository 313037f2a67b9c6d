package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	handler "github.com/Wyydra/yajanus/internal/adapter/driving/http"
	"github.com/Wyydra/yajanus/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	listen := flag.String("listen", "", "listen address (overrides proxy.listen)")
	upstream := flag.String("upstream", "", "gateway REST base url (overrides proxy.upstream)")
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
	if *listen != "" {
		cfg.Proxy.Listen = *listen
	}
	if *upstream != "" {
		cfg.Proxy.Upstream = *upstream
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	h := handler.NewHandler(handler.Options{
		Upstream:          cfg.Proxy.Upstream,
		WebSocketUpstream: cfg.Proxy.WebSocketUpstream,
		AllowedOrigins:    cfg.Proxy.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Proxy.Listen).Str("upstream", cfg.Proxy.Upstream).Msg("Starting proxy")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start proxy")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down proxy...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Proxy forced to shutdown")
	}
	log.Info().Msg("Proxy exited")
}
