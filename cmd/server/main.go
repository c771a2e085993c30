package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tsureben-backend/internal/config"
	"tsureben-backend/internal/database"
	"tsureben-backend/internal/handlers"
	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/pomodoro"
	"tsureben-backend/internal/repository"
	"tsureben-backend/internal/router"
	"tsureben-backend/internal/services"
	"tsureben-backend/internal/websocket"
	"tsureben-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Dir: cfg.LogDir}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	loc := cfg.Location()
	logger.Info("starting tsureben backend", "env", cfg.Env, "timezone", loc.String())

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connection failed", "err", err)
	}
	defer pool.Close()
	logger.Info("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", "err", err)
	}
	defer redisClients.Close()
	logger.Info("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		logger.Fatal("database migration failed", "err", err)
	}
	logger.Info("database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	planRepo := repository.NewPlanRepo(pool)
	logRepo := repository.NewPomodoroLogRepo(pool)
	sessionRepo := repository.NewActiveSessionRepo(pool)
	summaryRepo := repository.NewSummaryRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	publisher := services.NewRedisPublisher(redisClients.Queue)

	authService := services.NewAuthService(userRepo, services.NewRedisRefreshStore(redisClients.Queue), jwtAuth, cfg.GoogleClientID)
	planService := services.NewPlanService(planRepo, loc)
	pomodoroService := services.NewPomodoroService(
		planService,
		logRepo,
		userRepo,
		sessionRepo,
		services.NewRedisAnchorStore(redisClients.Queue),
		publisher,
		pomodoro.Options{
			Location:       loc,
			TickInterval:   cfg.TimerTickInterval,
			LookupAttempts: cfg.FinishLookupAttempts,
			LookupBackoff:  cfg.FinishLookupBackoff,
		},
	)
	presenceFeed := services.NewPresenceFeed(sessionRepo, userRepo, services.NewRedisChangeSource(redisClients.PubSub))
	matesService := services.NewMatesService(userRepo)
	profileService := services.NewProfileService(userRepo, planRepo, jobRepo,
		services.NewRedisJobQueue(redisClients.Queue, database.BulkRenameQueue))
	profileService.LimitRenames(middleware.NewRateLimiter(3, time.Minute, 3))
	statsService := services.NewStatsService(userRepo, logRepo, summaryRepo, loc)

	// ──── Step 5: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, jobRepo, planRepo, logRepo, publisher, cfg.WorkerCount)
	workerPool.Start()

	var rollupScheduler *services.RollupScheduler
	if cfg.RollupEnabled {
		rollupScheduler = services.NewRollupScheduler(
			services.NewRollup(userRepo, logRepo, summaryRepo, loc),
			services.NewRedisRunMarker(redisClients.Queue, database.RollupMarkerKey),
		)
		rollupScheduler.Start()
		logger.Info("rollup scheduler started")
	}

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, presenceFeed)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, router.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Profile:  handlers.NewProfileHandler(profileService),
		Plans:    handlers.NewPlanHandler(planService),
		Pomodoro: handlers.NewPomodoroHandler(pomodoroService, authService),
		Presence: handlers.NewPresenceHandler(presenceFeed),
		Mates:    handlers.NewMatesHandler(matesService),
		Stats:    handlers.NewStatsHandler(statsService),
	}, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)

		pomodoroService.Shutdown()
		workerPool.Stop()
		if rollupScheduler != nil {
			rollupScheduler.Stop()
		}
	}()

	logger.Info("tsureben backend ready", "api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", "err", err)
	}
	<-done
}
