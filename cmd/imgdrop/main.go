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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/imgdrop/api/swagger"
	"github.com/noah-isme/imgdrop/internal/handler"
	"github.com/noah-isme/imgdrop/internal/middleware"
	"github.com/noah-isme/imgdrop/internal/repository"
	"github.com/noah-isme/imgdrop/internal/service"
	"github.com/noah-isme/imgdrop/pkg/cache"
	"github.com/noah-isme/imgdrop/pkg/config"
	"github.com/noah-isme/imgdrop/pkg/database"
	"github.com/noah-isme/imgdrop/pkg/logger"
	corsmiddleware "github.com/noah-isme/imgdrop/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/imgdrop/pkg/middleware/requestid"
	"github.com/noah-isme/imgdrop/pkg/storage"
)

// @title imgdrop API
// @version 1.0.0
// @description Anonymous ephemeral image hosting
// @BasePath /
// @schemes http https

type artifactBackend interface {
	Put(ctx context.Context, id string, data []byte, contentType string) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	ContentTypeOf(ctx context.Context, id string) (string, error)
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := map[string]handler.ReadinessCheck{}

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var db *sqlx.DB
	var records *repository.UploadRepository
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer db.Close() //nolint:errcheck
		if err := database.Migrate(db); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		records = repository.NewUploadRepository(db)
		readiness["postgres"] = db.PingContext
	}

	store, err := newArtifactStore(ctx, cfg, redisClient)
	if err != nil {
		logr.Fatal("failed to init artifact store", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()

	ledger, err := newPolicyLedger(cfg, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to init policy ledger", zap.Error(err))
	}

	var limiter *service.RateLimiter
	if cfg.RateLimit.Driver == config.DriverRedis {
		limiter = service.NewRateLimiter(repository.NewRedisRateWindowRepository(redisClient, cfg.RateLimit.Max, cfg.RateLimit.Window), logr, metricsSvc)
	} else {
		limiter = service.NewRateLimiter(repository.NewMemoryRateWindowRepository(cfg.RateLimit.Max, cfg.RateLimit.Window), logr, metricsSvc)
	}
	go limiter.RunSweeper(ctx, cfg.RateLimit.SweepInterval)

	janitor := service.NewArtifactJanitor(store, logr, service.JanitorConfig{
		Workers:    cfg.Janitor.Workers,
		Retries:    cfg.Janitor.Retries,
		RetryDelay: cfg.Janitor.RetryDelay,
	})
	// Not bound to the signal context: rollbacks during the HTTP drain still
	// hand off deletes. Stop runs after srv.Shutdown.
	janitor.Start(context.Background())

	deps := service.RegistryDeps{
		Ledger:      ledger,
		Limiter:     limiter,
		Store:       store,
		Transformer: service.NewImageTransformer(),
		Bots:        service.NewBotVerifier(cfg.BotVerify, logr, metricsSvc),
		Contacts:    service.NewContactNormalizer(cfg.Contact.Required, cfg.Contact.DefaultRegion),
		Links:       storage.NewSignedURLSigner(cfg.Links.Secret, cfg.Links.TTL),
		Unlock:      service.NewUnlockTokens(service.UnlockConfig{Secret: cfg.Unlock.Secret, TTL: cfg.Unlock.TTL}),
		Janitor:     janitor,
		Logger:      logr,
		Metrics:     metricsSvc,
	}
	if records != nil {
		deps.Records = records
	}
	registry := service.NewRegistryService(deps, service.RegistryConfig{
		MaxFiles:      cfg.Upload.MaxFiles,
		MaxFileSize:   cfg.Upload.MaxFileSize,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	uploadHandler := handler.NewUploadHandler(registry, handler.UploadHandlerConfig{
		MaxBodyBytes:  int64(cfg.Upload.MaxFiles)*cfg.Upload.MaxFileSize + 1<<20,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	postHandler := handler.NewPostHandler(registry)
	rawHandler := handler.NewRawHandler(registry)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness)

	r, err := handler.NewEngine(cfg.TrustedProxies)
	if err != nil {
		logr.Fatal("invalid trusted proxies", zap.Error(err))
	}
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group("/api/v1")
	api.POST("/uploads", uploadHandler.Upload)
	api.GET("/posts/:sid", postHandler.Get)
	api.POST("/posts/:sid", postHandler.Submit)
	api.POST("/posts/:sid/unlock", postHandler.Unlock)
	r.GET("/raw/:id", rawHandler.Serve)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env,
			"storage", cfg.Storage.Driver, "ledger", cfg.Ledger.Driver, "rate_limit", cfg.RateLimit.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	janitor.Stop()
	if err := ledger.Close(); err != nil {
		logr.Warn("failed to close policy ledger", zap.Error(err))
	}
	if redisClient != nil && cfg.Ledger.Driver != config.DriverRedis {
		_ = redisClient.Close()
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Storage.Driver == config.DriverRedis ||
		cfg.Ledger.Driver == config.DriverRedis ||
		cfg.RateLimit.Driver == config.DriverRedis
}

func newPolicyLedger(cfg *config.Config, client *redis.Client, logr *zap.Logger) (*service.PolicyLedger, error) {
	if cfg.Ledger.Driver == config.DriverRedis {
		return service.NewPolicyLedger(repository.NewRedisPolicyRepository(client), logr, service.PolicyLedgerConfig{})
	}
	return service.NewPolicyLedger(repository.NewMemoryPolicyRepository(), logr, service.PolicyLedgerConfig{})
}

func newArtifactStore(ctx context.Context, cfg *config.Config, client *redis.Client) (artifactBackend, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		return storage.NewRedisStore(client), nil
	case config.DriverMinio:
		return storage.NewMinioStore(ctx, cfg.Minio)
	case config.DriverFilesystem, "":
		return storage.NewLocalStorage(cfg.Storage.Dir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
