package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"geminichat/internal/chat"
	"geminichat/internal/config"
	"geminichat/internal/metrics"
	"geminichat/internal/providers/registry"
)

func main() {
	setupLogger("warn", config.LogFormatConsole)

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			log.Error().Msg("Error: " + err.Error())
			return
		}
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Dur("timeout", cfg.HTTP.ClientTimeout).
		Msg("starting geminichat")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.Global()
	httpServer := startMetricsServer(cfg.Metrics)

	provider, err := registry.Build(ctx, registry.BuildOptions{
		Kind:       cfg.Provider,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: cfg.HTTP.ClientTimeout},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider")
	}

	loop := chat.New(chat.Config{
		Provider:  provider,
		Model:     cfg.Model,
		In:        os.Stdin,
		Out:       os.Stdout,
		Indicator: chat.NewSpinner(os.Stderr),
		Timeout:   cfg.HTTP.ClientTimeout,
		Logger:    log.Logger,
		Metrics:   m,
	})
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("chat loop stopped")
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop metrics server")
		}
	}
}

func startMetricsServer(cfg config.MetricsConfig) *http.Server {
	if cfg.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("metrics server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

// setupLogger sends everything to stderr; stdout belongs to the conversation.
func setupLogger(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	if format == config.LogFormatJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
