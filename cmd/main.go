package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales-live-gateway/internal/app"
	"sales-live-gateway/internal/backup"
	"sales-live-gateway/internal/config"
	"sales-live-gateway/internal/events"
	"sales-live-gateway/internal/gateway"
	"sales-live-gateway/internal/hierarchy"
	"sales-live-gateway/internal/history"
	gwhttp "sales-live-gateway/internal/http"
	"sales-live-gateway/internal/observability"
	"sales-live-gateway/internal/presence"
	"sales-live-gateway/internal/session"
	"sales-live-gateway/internal/stream"
	"sales-live-gateway/internal/stt"
	"sales-live-gateway/internal/stt/deepgram"
	sttmock "sales-live-gateway/internal/stt/mock"
	"sales-live-gateway/internal/visibility"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	logger := application.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence driver.
	store, err := history.NewStore(ctx, history.StoreConfig{
		Driver:      cfg.History.Driver,
		PostgresDSN: cfg.History.PostgresDSN,
		RedisAddr:   cfg.History.RedisAddr,
		RedisTTL:    cfg.History.RedisTTL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.History.Driver).Msg("history store init failed")
	}
	defer store.Close()

	var enhancer history.Enhancer
	if cfg.Enhance.Enabled {
		enhancer, err = history.NewLLMEnhancer(cfg.Enhance.APIKey, cfg.Enhance.Model, cfg.Enhance.BaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("enhancer init failed")
		}
	}
	historyService := history.NewService(store, enhancer, logger)

	// Hierarchy directory: backed by the CRM database when available.
	var directory hierarchy.Directory
	if cfg.History.Driver == history.DriverPostgres && cfg.History.PostgresDSN != "" {
		pgDir, err := hierarchy.NewPostgres(ctx, cfg.History.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("hierarchy directory init failed")
		}
		defer pgDir.Close()
		directory = pgDir
	} else {
		logger.Warn().Msg("no CRM database configured, manager rosters are empty")
		directory = hierarchy.NewStatic()
	}

	var sttProvider stt.Provider
	switch cfg.STT.Provider {
	case "deepgram":
		sttProvider, err = deepgram.New(cfg.STT.APIKey, deepgram.WithLanguage(cfg.STT.Language))
		if err != nil {
			logger.Fatal().Err(err).Msg("deepgram init failed")
		}
	case "mock":
		sttProvider = &sttmock.Provider{}
	case "none", "":
		// Transcription relay disabled; clients transcribe locally.
	default:
		logger.Fatal().Str("provider", cfg.STT.Provider).Msg("unknown STT provider")
	}

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicSession:    cfg.Kafka.TopicSession,
		Principal:       cfg.Kafka.Principal,
	})

	sessions := session.New(logger)
	streams := stream.New()
	filter := visibility.New(directory, logger)
	filter.AllowUnidentified = cfg.Realtime.AllowUnidentified
	tracker := presence.New(cfg.Realtime.OfflineGrace, nil, logger)

	hub := gateway.New(gateway.Config{
		Sessions:       sessions,
		Streams:        streams,
		Visibility:     filter,
		History:        historyService,
		Presence:       tracker,
		Directory:      directory,
		Publisher:      publisher,
		STT:            sttProvider,
		STTLanguage:    cfg.STT.Language,
		AllowedOrigins: cfg.Service.AllowedOrigins,
		Log:            logger,
	})
	tracker.SetOnOffline(hub.NotifyOffline)

	scheduler := backup.New(sessions, historyService, cfg.Realtime.BackupInterval, logger)
	scheduler.Start()

	obsServer := observability.NewServer(cfg.Service.MetricsAddr)
	obsServer.Start()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Service.HTTPPort,
		Handler: gwhttp.NewRouter(hub),
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("application start failed")
	}
	obsServer.SetReady()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Shutdown()

	// Stop accepting traffic first, then flush what is still in memory.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	hub.Shutdown()

	scheduler.Stop()
	<-scheduler.Done()
	if saved, failed := scheduler.FlushAll(shutdownCtx); saved+failed > 0 {
		logger.Info().Int("saved", saved).Int("failed", failed).Msg("final session flush")
	}
	historyService.Wait()

	tracker.Shutdown()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("observability shutdown")
	}
	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("publisher close")
	}
}
