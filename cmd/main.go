package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/cache"
	"github.com/Dosada05/tournament-progression/config"
	"github.com/Dosada05/tournament-progression/db"
	"github.com/Dosada05/tournament-progression/handlers"
	"github.com/Dosada05/tournament-progression/jobs"
	"github.com/Dosada05/tournament-progression/middleware"
	"github.com/Dosada05/tournament-progression/repositories"
	api "github.com/Dosada05/tournament-progression/routes"
	"github.com/Dosada05/tournament-progression/services"
	"github.com/Dosada05/tournament-progression/storage"
	"github.com/Dosada05/tournament-progression/tracing"
	"github.com/go-chi/chi/v5"
)

const serviceName = "tournament-progression"

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("env", cfg.Environment))

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := tracing.Init(rootCtx, logger, cfg.OTELEndpoint, serviceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("failed to flush traces", slog.Any("error", err))
		}
	}()

	// Подключение к базе данных
	dbConn, err := db.Connect(rootCtx, cfg.DatabaseURL, db.DefaultPoolOptions(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(rootCtx, dbConn); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("database schema applied")

	// Кэш рейтингов
	var rankingsCache cache.RankingsCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		rankingsCache = cache.NewRedisRankingsCache(rdb, cfg.RankingsTTL)
		logger.Info("redis rankings cache enabled")
	} else {
		rankingsCache = cache.NewMemoryRankingsCache(cfg.RankingsTTL)
		logger.Info("in-memory rankings cache enabled")
	}

	// Архив итоговых рейтингов (S3 / Cloudflare R2)
	var archive storage.FileUploader
	if cfg.S3Bucket != "" {
		archive, err = storage.NewS3Uploader(rootCtx, storage.S3UploaderConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			BucketName:      cfg.S3Bucket,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return err
		}
		logger.Info("rankings archive enabled", slog.String("bucket", cfg.S3Bucket))
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(rootCtx)
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	txm := repositories.NewSQLTxManager(dbConn, cfg.LockTimeout, logger)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	sessionRepo := repositories.NewPostgresSessionRepository(dbConn)
	rankingRepo := repositories.NewPostgresRankingRepository(dbConn)
	progressRepo := repositories.NewPostgresProgressRepository(dbConn)
	licenseRepo := repositories.NewPostgresLicenseRepository(dbConn)
	progressionRepo := repositories.NewPostgresProgressionRepository(dbConn)
	rewardRepo := repositories.NewPostgresRewardRepository(dbConn)
	assessmentRepo := repositories.NewPostgresSkillAssessmentRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	schedule := services.ScheduleConfig{RoundGap: cfg.RoundGap, SessionDuration: cfg.SessionDuration}

	assessmentService := services.NewSkillAssessmentService(txm, assessmentRepo, licenseRepo, userRepo,
		services.AssessmentRules{
			ValidationLevelThreshold: cfg.ValidationLevelThreshold,
			AssessorTenureDays:       cfg.AssessorTenureDays,
			CriticalSkillCategories:  cfg.CriticalSkillCategories,
			PassPercent:              cfg.PassPercent,
		}, logger)
	coupler := services.NewProgressLicenseCoupler(txm, progressRepo, licenseRepo, progressionRepo, logger,
		services.WithAdvancementGate(assessmentService),
		services.WithCouplerNotifier(wsHub),
	)
	rankingService := services.NewRankingService(txm, tournamentRepo, sessionRepo, rankingRepo, rankingsCache, wsHub, logger)
	progressionService := services.NewKnockoutProgressionService(txm, sessionRepo, tournamentRepo, wsHub, schedule, logger)
	bracketService := services.NewBracketService(tournamentRepo, participantRepo, sessionRepo, schedule, logger)
	tournamentService := services.NewTournamentService(txm, tournamentRepo, participantRepo, sessionRepo, rankingRepo,
		userRepo, bracketService, rankingService, archive, wsHub, logger)
	participantService := services.NewParticipantService(txm, participantRepo, userRepo, tournamentRepo, logger)

	policy := services.DefaultRewardPolicy()
	policy.BaseCredits = cfg.RewardBaseCredits
	policy.BaseExperience = cfg.RewardBaseExperience
	rewardService := services.NewRewardDistributionService(txm, tournamentRepo, rankingRepo, rewardRepo, coupler, wsHub,
		services.RewardConfig{Policy: policy, Concurrency: cfg.RewardConcurrency}, logger)
	matchService := services.NewMatchService(txm, sessionRepo, tournamentRepo, rankingService, progressionService,
		tournamentService, rewardService, wsHub, logger)
	dashboardService := services.NewDashboardService(progressRepo, licenseRepo, progressionRepo, rewardRepo)
	consistencyJobs := services.NewConsistencyJobs(progressRepo, tournamentRepo, coupler, rewardService, logger)
	logger.Info("Services initialized")

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)

	// Периодические задачи
	runner, err := jobs.NewGocronRunner(logger)
	if err != nil {
		return err
	}
	for _, j := range []struct {
		name  string
		every time.Duration
		job   jobs.Job
	}{
		{"consistency-audit", cfg.AuditInterval, consistencyJobs.AuditConsistency},
		{"consistency-repair", cfg.ResyncInterval, consistencyJobs.RepairDrift},
		{"reward-retry", cfg.RewardRetryInterval, consistencyJobs.RetryPendingDistributions},
		{"rate-limiter-cleanup", 10 * time.Minute, func(context.Context) (jobs.Report, error) {
			removed := limiter.Cleanup(time.Now())
			return jobs.Report{Processed: removed, Succeeded: removed}, nil
		}},
	} {
		if err := runner.Register(j.name, j.every, j.job); err != nil {
			return err
		}
	}
	runner.Start()
	defer func() {
		if err := runner.Shutdown(); err != nil {
			logger.Error("failed to stop job runner", slog.Any("error", err))
		}
	}()

	// Инициализация обработчиков HTTP
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Tournament:  handlers.NewTournamentHandler(tournamentService, rewardService),
		Participant: handlers.NewParticipantHandler(participantService),
		Match:       handlers.NewMatchHandler(matchService),
		Assessment:  handlers.NewAssessmentHandler(assessmentService),
		Progress:    handlers.NewProgressHandler(coupler),
		Dashboard:   handlers.NewDashboardHandler(dashboardService),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, tournamentService, logger),
	}, api.Options{
		JWTSecret:      cfg.JWTSecretKey,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: 30 * time.Second,
		RateLimiter:    limiter,
		DB:             dbConn,
		Logger:         logger,
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to close server", slog.Any("error", closeErr))
			}
		}
	}

	// websocket-клиенты закрываются вместе с хабом
	stop()
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
