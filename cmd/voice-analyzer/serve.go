package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skypro1111/voice-analyzer/internal/events"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
	"github.com/skypro1111/voice-analyzer/internal/server"
	"github.com/skypro1111/voice-analyzer/internal/session"
)

func runServe(args []string) error {
	flags, common := newFlagSet("serve")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, closer, err := common.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	logger := log.Logger

	logger.Info().
		Str("service", serviceName).
		Str("version", serviceVersion).
		Str("config_path", common.configPath).
		Msg("Service starting")

	logger.Info().
		Str("http_address", cfg.HTTP.Addr()).
		Str("analysis_endpoint", cfg.Analysis.Endpoint).
		Str("ffmpeg_path", cfg.Decoder.FFmpegPath).
		Int("decoder_sample_rate", cfg.Decoder.SampleRate).
		Int("max_sessions", cfg.Session.MaxSessions).
		Bool("events_enabled", cfg.Events.Enabled).
		Str("log_level", cfg.Logging.Level).
		Msg("Configuration loaded")

	appMetrics := metrics.NewMetrics()

	dec, err := newDecoder(cfg)
	if err != nil {
		return err
	}

	client, err := newAnalysisClient(cfg, logger, appMetrics)
	if err != nil {
		return err
	}
	defer client.Close()

	publisher := events.New(&events.Config{
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
		Enabled: cfg.Events.Enabled,
	}, logger, appMetrics)
	defer publisher.Close()

	sessions := session.NewManager(session.ManagerConfig{
		Timeout:         cfg.Session.GetTimeoutDuration(),
		CleanupInterval: cfg.Session.GetCleanupIntervalDuration(),
		MaxSessions:     cfg.Session.MaxSessions,
	}, logger, appMetrics)

	pipeline := session.NewPipeline(dec, client, logger, appMetrics).WithPublisher(publisher)

	httpServer := server.NewHTTPServer(cfg.HTTP, logger, sessions, pipeline, client, appMetrics)
	if err := httpServer.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Str("http_address", cfg.HTTP.Addr()).Msg("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping HTTP server")
	}

	sessions.Stop()

	stats := client.GetStats()
	logger.Info().
		Uint64("total_analysis_requests", stats.TotalRequests).
		Uint64("successful_analyses", stats.SuccessRequests).
		Float64("analysis_success_rate", stats.SuccessRate).
		Msg("Service stopped")

	return nil
}
