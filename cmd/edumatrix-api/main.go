package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/edumatrix-api/api/swagger"
	"github.com/noah-isme/edumatrix-api/internal/handler"
	internalmiddleware "github.com/noah-isme/edumatrix-api/internal/middleware"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	"github.com/noah-isme/edumatrix-api/internal/service"
	"github.com/noah-isme/edumatrix-api/pkg/cache"
	"github.com/noah-isme/edumatrix-api/pkg/config"
	"github.com/noah-isme/edumatrix-api/pkg/database"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
	"github.com/noah-isme/edumatrix-api/pkg/jobs"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
	"github.com/noah-isme/edumatrix-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edumatrix-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edumatrix-api/pkg/middleware/requestid"
	"github.com/noah-isme/edumatrix-api/pkg/passwords"
	"github.com/noah-isme/edumatrix-api/pkg/storage"
)

// @title EduMatrix API
// @version 1.0.0
// @description School management backend: role portals, courses, attendance, results, dashboards and reports.
// @BasePath /
// @schemes http
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	metrics := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Store.Driver == config.StoreDriverRedis || cfg.Events.RedisRelay || cfg.Dashboard.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			if cfg.Store.Driver == config.StoreDriverRedis {
				return fmt.Errorf("connect redis: %w", err)
			}
			logr.Warn("redis unavailable, dashboard cache and event relay disabled", zap.Error(err))
		} else {
			redisClient = client
			defer redisClient.Close() //nolint:errcheck
		}
	}

	backend, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	bus := eventbus.New(eventbus.Options{
		Buffer:    cfg.Events.Buffer,
		Logger:    logr,
		OnPublish: metrics.RecordEventPublished,
		OnDrop:    metrics.RecordEventDropped,
	})
	defer bus.Close()

	if cfg.Events.RedisRelay && redisClient != nil {
		relay := eventbus.NewRedisRelay(redisClient, bus, cfg.Events.Channel, logr)
		if err := relay.Start(ctx); err != nil {
			logr.Warn("event relay not started", zap.Error(err))
		} else {
			defer relay.Stop() //nolint:errcheck
		}
	}

	// Assigned once the dashboard service exists; nothing writes before that.
	var dashboard *service.DashboardService
	store := kvstore.Instrument(kvstore.Namespaced(backend, cfg.Store.Namespace), metrics, func(ctx context.Context, key string) {
		if strings.HasPrefix(key, repository.SessionKeyPrefix) {
			return
		}
		if dashboard != nil {
			dashboard.Invalidate(ctx, key)
		}
		bus.Publish(ctx, eventbus.TopicStorage, key)
	})

	retries := cfg.Store.MaxRetries
	validate := validator.New()

	users := repository.NewUserRepository(store, retries)
	courses := repository.NewCourseRepository(store, retries)
	rows := repository.NewEnrollmentRepository(store, retries)
	attendanceRepo := repository.NewAttendanceRepository(store, retries)
	resultRepo := repository.NewResultRepository(store, retries)
	activityRepo := repository.NewActivityRepository(store, retries, cfg.Activities.MaxEntries)
	lockRepo := repository.NewLockRepository(store)
	sessions := repository.NewSessionRepository(store)
	reportRepo := repository.NewReportRepository(store, retries)

	hasher := passwords.NewHasher(passwords.Scheme(cfg.Auth.PasswordScheme))
	activities := service.NewActivityService(activityRepo, bus, logr)
	locks := service.NewLockService(lockRepo, users, activities, logr, service.LockConfig{
		TTL:           cfg.Auth.ActiveLockTTL,
		OverrideToken: cfg.Auth.LockOverrideToken,
	})
	authSvc := service.NewAuthService(service.AuthServiceParams{
		Users:      users,
		Sessions:   sessions,
		Locks:      locks,
		Hasher:     hasher,
		Activities: activities,
		Validator:  validate,
		Logger:     logr,
		Config: service.AuthConfig{
			TokenSecret:        cfg.JWT.Secret,
			TokenExpiry:        cfg.JWT.Expiration,
			Issuer:             "edumatrix-api",
			UniquePasswordHash: cfg.Auth.UniquePasswordHash,
		},
	})
	enrollments := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Rows:       rows,
		Courses:    courses,
		Users:      users,
		Activities: activities,
		Events:     bus,
		Validator:  validate,
		Logger:     logr,
	})
	userSvc := service.NewUserService(service.UserServiceParams{
		Repo:        users,
		Enrollments: enrollments,
		Sessions:    sessions,
		Locks:       locks,
		Hasher:      hasher,
		Activities:  activities,
		Validator:   validate,
		Logger:      logr,
	})
	courseSvc := service.NewCourseService(service.CourseServiceParams{
		Repo:        courses,
		Enrollments: enrollments,
		Records:     []service.CourseRecords{attendanceRepo, resultRepo},
		Activities:  activities,
		Events:      bus,
		Validator:   validate,
		Logger:      logr,
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, rows, courses, bus, validate, logr)
	resultSvc := service.NewResultService(resultRepo, rows, courses, bus, validate, logr)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Store.CachePrefix())
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)
	dashboard = service.NewDashboardService(service.DashboardServiceParams{
		Users:       users,
		Courses:     courses,
		Enrollments: rows,
		Attendance:  attendanceRepo,
		Results:     resultRepo,
		Activities:  activityRepo,
		Cache:       cacheSvc,
		Logger:      logr,
		Config:      service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	go dashboard.InvalidateOnEvents(ctx, bus)

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(service.ExportSources{
		Users:       users,
		Courses:     courses,
		Enrollments: rows,
		Attendance:  attendanceRepo,
		Results:     resultRepo,
		Activities:  activityRepo,
	}, files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.Retention}, logr, nil, nil)
	worker := service.NewReportWorker(reportRepo, exporter, metrics, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		OnGiveUp:   worker.GiveUp,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	reports := service.NewReportService(reportRepo, courses, queue, exporter, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.Retention,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	reports.RecoverPendingJobs(ctx)
	reports.StartCleanup(ctx)

	system := service.NewSystemService(service.SystemServiceParams{
		Store:       repository.NewSystemRepository(store),
		Users:       users,
		Courses:     courses,
		Enrollments: rows,
		Activities:  activities,
		Events:      bus,
		Logger:      logr,
	})
	if cfg.Seed.DemoData {
		if _, err := system.Seed(ctx); err != nil {
			logr.Warn("demo data not loaded", zap.Error(err))
		}
	}
	if upgraded, err := authSvc.MigratePasswords(ctx); err != nil {
		logr.Warn("password migration failed", zap.Error(err))
	} else if upgraded > 0 {
		logr.Info("hashed plaintext passwords", zap.Int("count", upgraded))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	systemHandler := handler.NewSystemHandler(system, metrics)
	r.GET("/health", systemHandler.Health)
	r.GET("/ready", systemHandler.Ready)
	r.GET("/metrics", handler.NewMetricsHandler(metrics).Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Courses:     handler.NewCourseHandler(courseSvc, enrollments),
		Enrollments: handler.NewEnrollmentHandler(enrollments),
		Attendance:  handler.NewAttendanceHandler(attendanceSvc),
		Results:     handler.NewResultHandler(resultSvc),
		Locks:       handler.NewLockHandler(locks),
		Dashboard:   handler.NewDashboardHandler(dashboard),
		Activities:  handler.NewActivityHandler(activities),
		Reports:     handler.NewReportHandler(reports),
		System:      systemHandler,
		Events:      handler.NewEventsHandler(bus, cfg.CORS.AllowedOrigins, logr),
	}, authSvc, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver)
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

func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (kvstore.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		return kvstore.NewRedisStore(redisClient), nil
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := kvstore.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure documents schema: %w", err)
		}
		return pg, nil
	default:
		return kvstore.NewMemoryStore(), nil
	}
}
