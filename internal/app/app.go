package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/memora-music/server/cmd/server/docs"
	"github.com/memora-music/server/internal/module/auth"
	"github.com/memora-music/server/internal/module/mailer"
	"github.com/memora-music/server/internal/module/payment"
	"github.com/memora-music/server/internal/module/payment/provider"
	"github.com/memora-music/server/internal/module/paywall"
	"github.com/memora-music/server/internal/module/song"
	songprovider "github.com/memora-music/server/internal/module/song/provider"
	"github.com/memora-music/server/internal/module/song/storage"
	"github.com/memora-music/server/internal/module/song/task"
	"github.com/memora-music/server/internal/shared/cache"
	"github.com/memora-music/server/internal/shared/config"
	"github.com/memora-music/server/internal/shared/database"
	"github.com/memora-music/server/internal/shared/logger"
	"github.com/memora-music/server/internal/shared/response"
	"github.com/memora-music/server/internal/utils/middleware"
)

// App wires configuration, infrastructure and modules together.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	zapLog *zap.Logger

	db     *gorm.DB
	redis  *redis.Client
	server *http.Server

	paywallService *paywall.Service
	songTasks      *task.Store
}

// New builds the application.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	response.SetDevelopment(cfg.IsDevelopment())

	db, err := database.New(&cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	redisClient, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	if redisClient == nil {
		log.Warn("redis not configured, rate limiting disabled")
	}

	a := &App{
		cfg:    cfg,
		log:    log,
		zapLog: zapLog,
		db:     db,
		redis:  redisClient,
	}

	router := a.setupRouter()
	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

// setupRouter configures middleware and registers all module routes.
func (a *App) setupRouter() *gin.Engine {
	if !a.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	jwtManager := auth.NewJWTManager(&a.cfg.Auth)

	router.Use(
		middleware.Recovery(a.log),
		middleware.RequestID(),
		middleware.Logging(a.log),
		middleware.CORS(a.cfg.FrontendURL),
		middleware.Identity(),
		middleware.OptionalAuth(jwtManager),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))

	a.registerModules(router, jwtManager)
	return router
}

// registerModules builds every module and mounts its routes.
func (a *App) registerModules(router *gin.Engine, jwtManager *auth.JWTManager) {
	var limiter middleware.RateLimiter
	if a.redis != nil {
		limiter = middleware.NewRedisRateLimiter(a.redis)
	}

	var paymentMailer payment.Mailer
	if a.cfg.Email.SMTPHost != "" {
		smtpMailer, err := mailer.NewSMTPMailer(&a.cfg.Email)
		if err != nil {
			a.log.Warn("smtp mailer init failed, emails disabled", "error", err)
			paymentMailer = mailer.NewNoOpMailer()
		} else {
			paymentMailer = smtpMailer
		}
	} else {
		paymentMailer = mailer.NewNoOpMailer()
	}

	paymentRepo := payment.NewRepository(a.db)
	paywallRepo := paywall.NewRepository(a.db)

	a.paywallService = paywall.NewService(
		paywallRepo,
		&creditStoreAdapter{repo: paymentRepo},
		paywall.NewFallbackRecorder(),
		&a.cfg.Paywall,
		a.zapLog.Named("paywall"),
	)

	stripeProvider := provider.NewStripe(&a.cfg.Stripe)
	paymentService := payment.NewService(
		paymentRepo,
		stripeProvider,
		paywallRepo,
		paymentMailer,
		a.zapLog.Named("payment"),
	)

	a.songTasks = task.NewStore(a.cfg.Music.TaskRetention)
	a.songTasks.StartCleanup(a.cfg.Music.CleanupInterval)

	var archiver song.Archiver
	if a.cfg.Storage.Bucket != "" {
		s3Archiver, err := storage.New(context.Background(), &a.cfg.Storage)
		if err != nil {
			a.log.Warn("object storage init failed, audio archival disabled", "error", err)
		} else {
			archiver = s3Archiver
		}
	}

	songService := song.NewService(
		song.NewRepository(a.db),
		a.paywallService,
		songprovider.NewMusicClient(&a.cfg.Music),
		songprovider.NewLyricsClient(&a.cfg.Lyrics),
		a.songTasks,
		archiver,
		a.zapLog.Named("song"),
	)

	api := router.Group("/api")

	paywall.NewHandler(a.paywallService).RegisterRoutes(api)

	paymentHandler := payment.NewHandler(paymentService, a.cfg.IsDevelopment())
	paymentHandler.RegisterRoutes(api,
		middleware.RequireAuth(jwtManager),
		middleware.RateLimit(limiter, a.log, "payment", 10, 15*time.Minute),
	)
	payment.NewWebhookHandler(paymentService, stripeProvider, a.zapLog.Named("webhook")).
		RegisterRoutes(api, middleware.RateLimit(limiter, a.log, "webhook", 100, time.Minute))

	song.NewHandler(songService).RegisterRoutes(api)
}

// Run starts the HTTP server and blocks until it stops.
func (a *App) Run() error {
	a.log.Info("server starting", "address", a.cfg.Server.Address, "environment", a.cfg.Environment)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the application down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("server stopping")

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("http shutdown failed", "error", err)
	}

	// Let in-flight usage syncs finish before closing the database.
	if a.paywallService != nil {
		a.paywallService.Wait()
	}
	if a.songTasks != nil {
		a.songTasks.Stop()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", "error", err)
		}
	}
	if err := database.Close(a.db); err != nil {
		a.log.Warn("database close failed", "error", err)
	}

	_ = a.zapLog.Sync()
	return nil
}
