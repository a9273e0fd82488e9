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
	"github.com/chronica-ai/platform/pkg/common/models"
	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/documents"
	"github.com/chronica-ai/platform/pkg/observability/metrics"
	"github.com/chronica-ai/platform/pkg/oracle"
	"github.com/chronica-ai/platform/pkg/pipeline"
	"github.com/chronica-ai/platform/pkg/qa"
	"github.com/chronica-ai/platform/pkg/redact"
	"github.com/chronica-ai/platform/pkg/resolve"
	"github.com/chronica-ai/platform/pkg/terminology"
	"github.com/chronica-ai/platform/pkg/timeline"
)

func main() {
	logger.Init("resolution-service")
	cfg := config.Load()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	timelineRepo := timeline.NewRepository(db)
	detectionRepo := detect.NewRepository(db)
	attemptRepo := resolve.NewRepository(db)
	reportRepo := qa.NewRepository(db)
	// The timeline tables are migrated here too: this service reads and
	// writes them and must boot cleanly without timeline-service having
	// run first.
	for _, migrate := range []func() error{
		timelineRepo.AutoMigrate,
		detectionRepo.AutoMigrate,
		attemptRepo.AutoMigrate,
		reportRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate resolution tables")
		}
	}

	rules, err := detect.LoadRules(cfg.DetectionRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default detection rules")
		rules = detect.DefaultRules()
	}
	rules.ConfidenceFloor = cfg.ConfidenceFloor
	detector := detect.New(rules, "chronica-detector/v1")

	redactionRules, err := redact.LoadRules(cfg.RedactionRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default redaction rules")
		redactionRules = redact.DefaultRules()
	}
	redactor, err := redact.NewRedactor(redactionRules)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid redaction rules")
	}

	catalog, err := terminology.Load(cfg.TerminologyPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default terminology catalog")
	}

	builder := timeline.NewContextBuilder(cfg.PostSurgicalWindow)
	finders := []resolve.DocumentFinder{
		documents.NewClient(cfg.DocumentIndexBaseURL, "document-index", cfg.CollaboratorTimeout),
		documents.NewClient(cfg.NoteIndexBaseURL, "note-index", cfg.CollaboratorTimeout),
	}
	gatherer := resolve.NewGatherer(builder, finders, redactor, catalog)

	orchestrator := resolve.NewOrchestrator(
		timelineRepo,
		attemptRepo,
		oracle.NewClient(cfg),
		gatherer,
		cfg.OracleModelName,
		cfg.OracleMaxRetries,
		cfg.EvidenceWindowDays,
		cfg.MedicationWindowDays,
		cfg.AcceptanceFloor,
	)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.ReportUpdatedTopic)
	defer producer.Close()

	registry := metrics.NewRegistry()
	svc := pipeline.NewService(timelineRepo, detector, detectionRepo, attemptRepo, orchestrator, reportRepo, producer, registry)

	lock := pipeline.NewPatientLock(redisClient, cfg.PatientLockTTL)
	runner := pipeline.NewRunner(svc, lock, cfg.PipelineWorkers, cfg.PipelineWorkers*32)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	// Every ingested event re-triggers the patient's pipeline pass.
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.EventIngestedTopic, cfg.KafkaGroupID+"-resolution")
	defer consumer.Close()
	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, event models.BusEvent) error {
			patientID, _ := event.Data["patient_id"].(string)
			if patientID == "" {
				logger.Log.WithField("bus_event_id", event.ID).Warn("ingestion notice without patient_id")
				return nil
			}
			runner.Enqueue(patientID)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("ingestion consumer stopped")
		}
	}()

	handler := pipeline.NewHTTPHandler(svc, runner, detectionRepo, cfg.MaxRequestBody)

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

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Resolution Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Resolution Service...")
	cancel()
	runner.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Resolution Service stopped")
}
