package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/common/db"
	commonmw "judgegate/internal/common/http/middleware"
	"judgegate/internal/common/mq"
	"judgegate/internal/common/storage"
	"judgegate/internal/run/admission"
	"judgegate/internal/run/artifact"
	"judgegate/internal/run/controller"
	"judgegate/internal/run/disclosure"
	"judgegate/internal/run/eligibility"
	"judgegate/internal/run/grader"
	"judgegate/internal/run/metrics"
	"judgegate/internal/run/repository"
	"judgegate/internal/run/service"
	"judgegate/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/run_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	producer, err := mq.NewKafkaProducer(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = producer.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	runService, err := buildRunService(appCfg, mysqlDB, redisCache, producer, objStorage)
	if err != nil {
		logger.Error(context.Background(), "init run service failed", zap.Error(err))
		return
	}

	verifier := commonmw.NewTokenVerifier(appCfg.Auth.JWTSecret, appCfg.Auth.Issuer)
	httpServer := buildHTTPServer(appCfg.Server, runService, verifier)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "run http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildRunService(appCfg *AppConfig, database db.Database, redisCache cache.Cache, producer mq.Producer, objects storage.ObjectStorage) (*service.RunService, error) {
	recorder := metrics.NewRecorder()
	aggregates := cache.NewAggregates(redisCache, appCfg.Run.AggregatePrefix)

	submissionRepo := repository.NewSubmissionRepository(database)
	runRepo := repository.NewRunRepository(database)
	problemRepo := repository.NewProblemRepositoryWithTTL(database, redisCache, appCfg.Run.ProblemCacheTTL, appCfg.Run.ProblemEmptyTTL)
	contestRepo := repository.NewContestRepository(database)
	problemsetRepo := repository.NewProblemsetRepository(database)
	identityRepo := repository.NewIdentityRepository(database)
	auditRepo := repository.NewSubmissionLogRepository(database)
	authorizer := repository.NewACLAuthorizer(database, problemRepo, problemsetRepo)
	sourceRepo, err := repository.NewSourceRepository(objects, appCfg.Run.SourceBucket)
	if err != nil {
		return nil, err
	}

	graderClient, err := grader.NewClient(producer, objects, appCfg.Grader)
	if err != nil {
		return nil, err
	}
	resolver := artifact.NewResolver(graderClient, appCfg.Archive, artifact.WithFallbackObserver(recorder))
	caseStore := artifact.NewCaseStore(objects, redisCache, appCfg.Cases)

	validator := eligibility.NewValidator(problemRepo, contestRepo, problemsetRepo, submissionRepo, authorizer, eligibility.Config{
		Lockdown:             appCfg.Run.Lockdown,
		DefaultSubmissionGap: appCfg.Run.DefaultSubmissionGap,
		SupportedLanguages:   appCfg.Run.SupportedLanguages,
	})

	coordinator, err := admission.NewCoordinator(admission.Config{
		DB:          database,
		Submissions: submissionRepo,
		Runs:        runRepo,
		Sources:     sourceRepo,
		Grader:      graderClient,
		AuditLog:    auditRepo,
		Problems:    problemRepo,
		Authorizer:  authorizer,
		Aggregates:  aggregates,
		Observer:    recorder,
	})
	if err != nil {
		return nil, err
	}

	policy := disclosure.NewPolicy(disclosure.Deps{
		Authorizer: authorizer,
		Solved:     problemRepo,
		Resources:  resolver,
		Cases:      caseStore,
		Sources:    sourceRepo,
		Aggregates: aggregates,
	}, disclosure.Config{
		Lockdown:        appCfg.Run.Lockdown,
		DiffSizeCeiling: appCfg.Run.DiffSizeCeiling,
		DetailsCacheTTL: appCfg.Run.DetailsCacheTTL,
	})

	return service.NewRunService(service.Config{
		Validator:      validator,
		Coordinator:    coordinator,
		Disclosure:     policy,
		Submissions:    submissionRepo,
		Runs:           runRepo,
		Problems:       problemRepo,
		Contests:       contestRepo,
		Identities:     identityRepo,
		Aggregates:     aggregates,
		Observer:       recorder,
		MaxSourceBytes: appCfg.Run.MaxSourceBytes,
		CountsDays:     appCfg.Run.CountsDays,
		CountsTTL:      appCfg.Run.CountsTTL,
		Timeouts:       appCfg.Run.Timeouts.service(),
	})
}

func buildHTTPServer(cfg ServerConfig, runService *service.RunService, verifier *commonmw.TokenVerifier) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(metrics.Middleware())
	router.Use(requestLogger())

	router.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1/runs")
	api.Use(commonmw.AuthMiddleware(verifier))
	controller.NewRunController(runService).Register(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
