package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/chronica-ai/platform/pkg/common/config"
	"github.com/chronica-ai/platform/pkg/common/database"
	"github.com/chronica-ai/platform/pkg/common/kafka"
	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/observability/metrics"
	"github.com/chronica-ai/platform/pkg/timeline"
)

func main() {
	logger.Init("timeline-service")
	cfg := config.Load()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	repo := timeline.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate timeline tables")
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventIngestedTopic)
	defer producer.Close()

	registry := metrics.NewRegistry()
	builder := timeline.NewContextBuilder(cfg.PostSurgicalWindow)
	svc := timeline.NewService(timeline.NewValidator(), repo, builder, producer, registry)
	handler := timeline.NewHTTPHandler(svc, repo, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			http.Error(w, `{"status":"not ready"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", registry.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ClinicalEventsTopic, cfg.KafkaGroupID+"-timeline")
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, svc.HandleBusEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("clinical event consumer stopped")
		}
	}()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Timeline Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Timeline Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Timeline Service stopped")
}
