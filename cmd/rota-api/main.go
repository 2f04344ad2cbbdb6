package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/conflict"
	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/handler"
	"github.com/clinrota/rota-api/internal/repository"
	"github.com/clinrota/rota-api/internal/service"
	"github.com/clinrota/rota-api/internal/solver"
	"github.com/clinrota/rota-api/pkg/cache"
	"github.com/clinrota/rota-api/pkg/config"
	"github.com/clinrota/rota-api/pkg/database"
	"github.com/clinrota/rota-api/pkg/logger"
	corsmiddleware "github.com/clinrota/rota-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clinrota/rota-api/pkg/middleware/requestid"
)

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
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and change events disabled", "error", err)
		redisClient = nil
	}

	people := repository.NewPersonRepository(db)
	blocks := repository.NewBlockRepository(db)
	rotations := repository.NewRotationTemplateRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	absences := repository.NewAbsenceRepository(db)
	constraints := repository.NewConstraintConfigRepository(db)
	swaps := repository.NewSwapRepository(db)
	violations := repository.NewViolationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	publisher := events.NewPublisher(redisClient, logr)
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	complianceEngine := compliance.NewEngine(compliance.Thresholds{
		WeeklyHourCeiling: cfg.Compliance.WeeklyHourCeiling,
		AveragingWeeks:    cfg.Compliance.AveragingWeeks,
	})
	detector := conflict.NewDetector(complianceEngine)
	solverEngine := solver.NewEngine(solver.Options{
		Timeout:            cfg.Solver.DefaultTimeout,
		NodeBudget:         cfg.Solver.NodeBudget,
		HeuristicThreshold: cfg.Solver.HeuristicThreshold,
	}, logr)

	constraintSvc := service.NewConstraintService(constraints, cacheRepo, cfg.Compliance.CacheTTL, metricsSvc, validate, logr)
	complianceSvc := service.NewComplianceService(complianceEngine, people, assignments, rotations, violations, cacheRepo, cfg.Compliance.CacheTTL, cfg.Batch.SweepWorkers, metricsSvc, validate, logr)

	svcs := handler.Services{
		People:      service.NewPersonService(people, publisher, validate, logr),
		Blocks:      service.NewBlockService(blocks, publisher, logr),
		Rotations:   service.NewRotationService(rotations, publisher, validate, logr),
		Absences:    service.NewAbsenceService(absences, assignments, publisher, validate, logr),
		Assignments: service.NewAssignmentService(assignments, people, rotations, blocks, absences, constraintSvc, violations, complianceEngine, publisher, metricsSvc, cfg.Batch.MaxSize, validate, logr),
		Schedule:    service.NewScheduleService(assignments, people, rotations, blocks, absences, constraintSvc, solverEngine, complianceEngine, publisher, metricsSvc, validate, logr),
		Swaps:       service.NewSwapService(swaps, assignments, people, rotations, absences, constraintSvc, detector, complianceEngine, publisher, metricsSvc, cfg.Swap.RollbackWindow, cfg.Swap.MatchLimit, validate, logr),
		Compliance:  complianceSvc,
		Conflicts:   service.NewConflictService(detector, assignments, absences, people, rotations, logr),
		Constraints: constraintSvc,
		Metrics:     metricsSvc,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := constraintSvc.Seed(ctx); err != nil {
		logr.Sugar().Fatalw("failed to seed constraints", "error", err)
	}
	complianceSvc.StartSweeper(ctx)
	defer complianceSvc.StopSweeper()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	handler.RegisterRoutes(r, cfg.APIPrefix, cfg.Actor.TokenSecret, cfg.Actor.Header, svcs)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
