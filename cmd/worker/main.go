package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/decet2025-sketch/cert-api/config"
	"github.com/decet2025-sketch/cert-api/internal/email"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/repository/postgres"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/service/graphy"
	"github.com/decet2025-sketch/cert-api/internal/service/poller"
	"github.com/decet2025-sketch/cert-api/internal/service/renderer"
	"github.com/decet2025-sketch/cert-api/internal/storage"
	"github.com/decet2025-sketch/cert-api/internal/worker"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/messaging"
	"github.com/decet2025-sketch/cert-api/pkg/messaging/redis"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets")
	}

	appLogger := logger.NewLogger(nil)
	m := metrics.New("worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	eventRepo := postgres.NewWebhookEventRepository(base)
	learnerRepo := postgres.NewLearnerRepository(base)
	courseRepo := repository.NewCachedCourseRepository(postgres.NewCourseRepository(base), cfg.CacheTTL)
	orgRepo := repository.NewCachedOrganizationRepository(postgres.NewOrganizationRepository(base), cfg.CacheTTL)
	emailLogRepo := postgres.NewEmailLogRepository(base)

	rendererSvc := renderer.NewService(renderer.Config{
		LocalPDF:   cfg.Renderer.LocalPDF,
		PDFAPIURL:  cfg.Renderer.PDFAPIURL,
		PDFTimeout: cfg.Renderer.PDFTimeout,
		APITokens:  secrets.PDFAPITokens,
	}, appLogger, m)

	mailer := email.NewSMTPService(email.SMTPConfig{
		Host:     secrets.SMTPHost,
		Port:     secrets.SMTPPort,
		User:     secrets.SMTPUser,
		Password: secrets.SMTPPassword,
		From:     secrets.SMTPFrom,
		FromName: cfg.Email.FromName,
	}, appLogger)

	store, err := storage.NewFilesystemStore(cfg.Storage.Dir, appLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize certificate storage")
	}

	lms := graphy.NewClient(graphy.Config{
		BaseURL:    cfg.Graphy.BaseURL,
		MerchantID: secrets.GraphyMerchantID,
		APIKey:     secrets.GraphyAPIKey,
		Timeout:    cfg.Graphy.Timeout,
	}, appLogger)

	certWorker := certificate.NewWorker(certificate.WorkerParams{
		Events:    eventRepo,
		Learners:  learnerRepo,
		Courses:   courseRepo,
		Orgs:      orgRepo,
		EmailLogs: emailLogRepo,
		Renderer:  rendererSvc,
		Mailer:    mailer,
		Store:     store,
		Subject:   cfg.Email.SubjectTmpl,
		Logger:    appLogger,
		Metrics:   m,
	})

	completionPoller := poller.NewService(learnerRepo, eventRepo, lms, certWorker, appLogger, m)
	retrySweep := worker.NewRetrySweep(eventRepo, certWorker, cfg.Retry.MaxAttempts, cfg.Retry.StaleAfter, cfg.Retry.BatchSize, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queued consumer: the API binary publishes persisted event ids here.
	if cfg.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()

		msgs, err := broker.Subscribe(ctx, messaging.WebhookEventsChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to webhook events channel")
		}
		go consume(ctx, msgs, certWorker, appLogger)
	} else {
		appLogger.Warn("no Redis URL configured, running scheduled jobs only")
	}

	scheduler := cron.New()
	if cfg.Poller.Enabled {
		if _, err := scheduler.AddFunc(cfg.Poller.Schedule, func() {
			if _, err := completionPoller.ProcessBatch(ctx, cfg.Poller.BatchSize); err != nil {
				appLogger.Error(err, "completion poll failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("invalid poller schedule")
		}
	}
	if cfg.Retry.Enabled {
		if _, err := scheduler.AddFunc(cfg.Retry.Schedule, func() {
			if _, err := retrySweep.Run(ctx); err != nil {
				appLogger.Error(err, "retry sweep failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("invalid retry schedule")
		}
	}
	scheduler.Start()

	srv := healthServer(cfg.Server.Port+1, db)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start worker health server")
		}
	}()

	appLogger.Info("worker started",
		"poller_schedule", cfg.Poller.Schedule,
		"retry_schedule", cfg.Retry.Schedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down worker")

	cancel()
	cronCtx := scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
		appLogger.Warn("timed out waiting for scheduled jobs to finish")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "health server shutdown failed")
	}

	appLogger.Info("worker exited")
}

func consume(ctx context.Context, msgs <-chan []byte, certWorker *certificate.Worker, appLogger *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			var msg messaging.DispatchMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				appLogger.Error(err, "failed to decode dispatch message")
				continue
			}
			id, err := uuid.Parse(msg.WebhookEventID)
			if err != nil {
				appLogger.Error(err, "dispatch message carries invalid event id", "id", msg.WebhookEventID)
				continue
			}
			if err := certWorker.Process(ctx, id); err != nil {
				appLogger.Error(err, "webhook event processing failed", "event", msg.WebhookEventID)
			}
		}
	}
}

func healthServer(port int, db interface{ Ping() error }) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	engine.GET("/health/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
}
