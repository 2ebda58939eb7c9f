package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-registry/api/swagger"
	"github.com/noah-isme/school-registry/internal/handler"
	"github.com/noah-isme/school-registry/internal/repository"
	"github.com/noah-isme/school-registry/internal/router"
	"github.com/noah-isme/school-registry/internal/service"
	"github.com/noah-isme/school-registry/pkg/cache"
	"github.com/noah-isme/school-registry/pkg/config"
	"github.com/noah-isme/school-registry/pkg/database"
	"github.com/noah-isme/school-registry/pkg/export"
	"github.com/noah-isme/school-registry/pkg/jobs"
	"github.com/noah-isme/school-registry/pkg/logger"
	"github.com/noah-isme/school-registry/pkg/mailer"
	"github.com/noah-isme/school-registry/pkg/payment"
)

// @title School Registry API
// @version 1.0.0
// @description Season calendars, class arrangements, registrations and family billing.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient := cache.NewOptionalRedis(ctx, cfg.Redis, cfg.Catalog.CacheEnabled, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	workflow := service.WorkflowConfig{Isolation: cfg.Registration.IsolationLevel()}

	seasonRepo := repository.NewSeasonRepository(db)
	arrangementRepo := repository.NewArrangementRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	regChangeRepo := repository.NewRegChangeRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	receiptRepo := repository.NewPaymentReceiptRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "school-registry", logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, redisClient != nil)

	var sender mailer.Sender = mailer.NewLogSender(logr)
	if cfg.Mail.Enabled {
		sender = mailer.NewSendGridSender(cfg.Mail.SendgridAPIKey, cfg.Mail.FromName, cfg.Mail.FromAddress, cfg.Mail.SubjectPrefix)
	}
	notifier := service.NewNotificationService(sender, familyRepo, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.MaxRetries,
		RetryDelay: 2 * time.Second,
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	var verifier payment.Verifier
	if cfg.Payment.Enabled {
		verifier = payment.NewMidtransVerifier(cfg.Payment.MidtransServerKey, cfg.Payment.Production)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	seasonSvc := service.NewSeasonService(seasonRepo, db, cacheSvc, validate, logr, workflow)
	arrangementSvc := service.NewArrangementService(arrangementRepo, seasonRepo, db, cacheSvc, validate, logr, workflow)
	registrationSvc := service.NewRegistrationService(registrationRepo, arrangementRepo, seasonRepo, balanceRepo, familyRepo, db, metrics, validate, logr, workflow)
	regChangeSvc := service.NewRegChangeService(regChangeRepo, registrationRepo, arrangementRepo, seasonRepo, balanceRepo, notifier, db, metrics, validate, logr, workflow)
	paymentSvc := service.NewPaymentService(balanceRepo, receiptRepo, registrationRepo, verifier, notifier, db, metrics, validate, logr, workflow)
	exportSvc := service.NewExportService(arrangementSvc, paymentSvc, logr, export.NewCSVExporter(), export.NewPDFExporter())

	engine := router.New(router.Deps{
		Config:  cfg,
		Logger:  logr,
		Metrics: metrics,
		Tokens:  authSvc,
	}, router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Season:       handler.NewSeasonHandler(seasonSvc),
		Arrangement:  handler.NewArrangementHandler(arrangementSvc),
		Registration: handler.NewRegistrationHandler(registrationSvc),
		RegChange:    handler.NewRegChangeHandler(regChangeSvc),
		Payment:      handler.NewPaymentHandler(paymentSvc),
		Export:       handler.NewExportHandler(exportSvc),
		Metrics:      handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
