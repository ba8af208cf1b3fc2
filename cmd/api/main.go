package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/decet2025-sketch/cert-api/config"
	"github.com/decet2025-sketch/cert-api/internal/email"
	adminHandler "github.com/decet2025-sketch/cert-api/internal/handler/admin"
	healthHandler "github.com/decet2025-sketch/cert-api/internal/handler/health"
	webhookHandler "github.com/decet2025-sketch/cert-api/internal/handler/webhook"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/repository/postgres"
	"github.com/decet2025-sketch/cert-api/internal/router"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
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
	m := metrics.New("api")

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

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	} else {
		appLogger.Warn("no Redis URL configured, webhook events will be processed inline")
	}

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
	signer := storage.NewSigner(secrets.DownloadURLSecret, cfg.Storage.DownloadTTL)

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
	resender := certificate.NewResender(eventRepo, learnerRepo, certWorker, cfg.Retry.ResendCooldown, appLogger)
	retrySweep := worker.NewRetrySweep(eventRepo, certWorker, cfg.Retry.MaxAttempts, cfg.Retry.StaleAfter, cfg.Retry.BatchSize, appLogger)

	healthH := healthHandler.NewHandler(db)
	webhookH := webhookHandler.NewHandler(eventRepo, certWorker, broker, secrets.WebhookSecret, appLogger)
	adminH := adminHandler.NewHandler(eventRepo, learnerRepo, resender, retrySweep, store, signer, appLogger)

	r := router.NewRouter(healthH, webhookH, adminH, router.Config{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
	})
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited")
}
