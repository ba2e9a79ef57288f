package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/edufin-api/api/swagger"
	"github.com/noah-isme/edufin-api/internal/handler"
	"github.com/noah-isme/edufin-api/internal/repository"
	"github.com/noah-isme/edufin-api/internal/service"
	"github.com/noah-isme/edufin-api/pkg/billing"
	"github.com/noah-isme/edufin-api/pkg/cache"
	"github.com/noah-isme/edufin-api/pkg/config"
	"github.com/noah-isme/edufin-api/pkg/database"
	"github.com/noah-isme/edufin-api/pkg/export"
	"github.com/noah-isme/edufin-api/pkg/jobs"
	"github.com/noah-isme/edufin-api/pkg/logger"
	"github.com/noah-isme/edufin-api/pkg/storage"
)

// @title EduFin API
// @version 1.0.0
// @description Course catalog, learning progress, certificates, badges and payments
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := buildApp(cfg, db, logr)
	if err != nil {
		logr.Fatal("failed to wire application", zap.Error(err))
	}
	app.renderQueue.Start(ctx)
	if app.redis != nil {
		defer app.redis.Close()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("shutdown error", zap.Error(err))
	}
	if err := app.renderQueue.Stop(shutdownCtx); err != nil {
		logr.Warn("render queue not drained", zap.Int("pending", app.renderQueue.Pending()), zap.Error(err))
	}
}

type application struct {
	users   *repository.UserRepository
	auth    *service.AuthService
	metrics *service.MetricsService
	redis   *redis.Client

	renderQueue *jobs.Queue

	authHandler         *handler.AuthHandler
	catalogHandler      *handler.CatalogHandler
	enrollmentHandler   *handler.EnrollmentHandler
	progressHandler     *handler.ProgressHandler
	certificateHandler  *handler.CertificateHandler
	gamificationHandler *handler.GamificationHandler
	dashboardHandler    *handler.DashboardHandler
	discussionHandler   *handler.DiscussionHandler
	paymentHandler      *handler.PaymentHandler
	metricsHandler      *handler.MetricsHandler
}

// pingFunc adapts a ping function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func buildApp(cfg *config.Config, db *sqlx.DB, logr *zap.Logger) (*application, error) {
	validate := service.NewValidator()
	metrics := service.NewMetricsService()
	app := &application{metrics: metrics}
	checks := map[string]handler.Pinger{"postgres": db}

	var cacheRepo service.CacheRepository
	if cfg.Catalog.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		} else {
			app.redis = client
			redisRepo := repository.NewCacheRepository(client, cfg.Redis.KeyPrefix, logr)
			cacheRepo = redisRepo
			checks["redis"] = pingFunc(redisRepo.Ping)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)

	users := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	discussionRepo := repository.NewDiscussionRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	app.users = users

	app.auth = service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})

	store, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("certificate storage: %w", err)
	}
	urls := service.CertificateURLs{BaseURL: cfg.PublicURL + cfg.APIPrefix}
	documents := service.NewCertificateDocuments(certificateRepo, store, export.NewCertificateRenderer(cfg.Certificates.IssuerName), urls)
	worker := service.NewCertificateWorker(certificateRepo, documents, logr)
	app.renderQueue = jobs.NewQueue(service.CertificateRenderJob, worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Certificates.WorkerConcurrency,
		MaxRetries: cfg.Certificates.WorkerRetries,
		Logger:     logr,
		OnResult: func(job jobs.Job, err error, _ bool) {
			metrics.RecordJob(job.Type, err)
		},
	})
	metrics.WatchQueue(service.CertificateRenderJob, app.renderQueue.Pending)
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	catalogSvc := service.NewCatalogService(catalogRepo, enrollmentRepo, progressRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, catalogRepo, subscriptionRepo, progressRepo, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, progressRepo, documents, signer, app.renderQueue, urls, metrics, logr)
	gamificationSvc := service.NewGamificationService(badgeRepo, progressRepo, profileRepo, metrics, logr)
	progressSvc := service.NewProgressService(service.ProgressDeps{
		Progress:     progressRepo,
		Lessons:      catalogRepo,
		Enrollments:  enrollmentRepo,
		Profiles:     profileRepo,
		Notes:        discussionRepo,
		Certificates: certificateSvc,
		Badges:       gamificationSvc,
		Metrics:      metrics,
	}, validate, logr)
	dashboardSvc := service.NewDashboardService(enrollmentRepo, progressRepo, certificateRepo, badgeRepo, profileRepo, subscriptionRepo, logr)
	discussionSvc := service.NewDiscussionService(discussionRepo, catalogRepo, enrollmentRepo, gamificationSvc, validate, logr)
	provider, notifications := newBilling(cfg.Billing, logr)
	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		Payments:      paymentRepo,
		Subscriptions: subscriptionRepo,
		Courses:       catalogSvc,
		Enrollments:   enrollmentRepo,
		Granter:       enrollmentSvc,
		Users:         users,
		Audit:         users,
		Provider:      provider,
		Verifier:      notifications,
		Metrics:       metrics,
	}, service.PaymentConfig{
		Currency:   cfg.Billing.Currency,
		SuccessURL: cfg.Billing.SuccessURL,
		CancelURL:  cfg.Billing.CancelURL,
	}, validate, logr)

	app.authHandler = handler.NewAuthHandler(app.auth)
	app.catalogHandler = handler.NewCatalogHandler(catalogSvc)
	app.enrollmentHandler = handler.NewEnrollmentHandler(enrollmentSvc)
	app.progressHandler = handler.NewProgressHandler(progressSvc)
	app.certificateHandler = handler.NewCertificateHandler(certificateSvc)
	app.gamificationHandler = handler.NewGamificationHandler(gamificationSvc)
	app.dashboardHandler = handler.NewDashboardHandler(dashboardSvc)
	app.discussionHandler = handler.NewDiscussionHandler(discussionSvc)
	app.paymentHandler = handler.NewPaymentHandler(paymentSvc)
	app.metricsHandler = handler.NewMetricsHandler(metrics, checks)
	return app, nil
}

// newBilling uses the hosted checkout and its notifications when a server key
// is set, and falls back to the offline provider with signed envelopes for
// local development.
func newBilling(cfg config.BillingConfig, logr *zap.Logger) (billing.Provider, billing.Notifications) {
	if cfg.ServerKey == "" {
		logr.Warn("billing server key not set, using offline checkout provider")
		return billing.OfflineProvider{}, billing.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	}
	return billing.NewMidtransProvider(cfg.ServerKey, cfg.Production), billing.NewMidtransNotifications(cfg.ServerKey)
}
