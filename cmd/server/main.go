package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeduel/duel-backend/internal/api"
	"github.com/codeduel/duel-backend/internal/api/handlers"
	"github.com/codeduel/duel-backend/internal/config"
	"github.com/codeduel/duel-backend/internal/repository"
	"github.com/codeduel/duel-backend/internal/service"
	"github.com/codeduel/duel-backend/internal/websocket"
	"github.com/codeduel/duel-backend/pkg/database"
	"github.com/codeduel/duel-backend/pkg/distributed"
	jwtutil "github.com/codeduel/duel-backend/pkg/jwt"
	"github.com/codeduel/duel-backend/pkg/logger"
	"github.com/codeduel/duel-backend/pkg/problems"
	"github.com/codeduel/duel-backend/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	instanceID := uuid.NewString()
	logger.Info("Starting duel backend",
		"port", cfg.Port,
		"env", cfg.Env,
		"instanceId", instanceID,
	)

	// 데이터베이스 연결
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	// Redis 연결
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid REDIS_URL", "error", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}
	logger.Info("Redis connection established")

	// Redis 공유 상태
	claims := distributed.NewMatchClaims(rdb)
	queue := distributed.NewQueueStore(rdb, claims)
	directory := distributed.NewSessionDirectory(rdb, instanceID)
	locks := distributed.NewRedisLockManager(rdb, instanceID)
	bus := distributed.NewEventBus(rdb, instanceID, logger.Named("event_bus"))

	// Repository 초기화
	userRepo := repository.NewUserRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	requestRepo := repository.NewMatchRequestRepository(db)

	// 문제 제공자
	leetcode := problems.NewLeetCodeClient(
		cfg.ProblemProviderURL,
		cfg.ProblemProviderCookie,
		cfg.ProblemProviderTimeout,
		logger.Named("leetcode"),
	)
	topics := problems.NewTopicCache(leetcode)
	go func() {
		if err := topics.Refresh(ctx); err != nil {
			logger.Warn("Failed to load topic difficulties", "error", err)
		}
	}()

	// WebSocket Hub
	wsLimiter := ratelimit.NewRateLimiter(cfg.WSMessageBurst, cfg.WSMessageRate)
	defer wsLimiter.Close()
	hub := websocket.NewHub(wsLimiter, logger.Named("hub"))
	router := service.NewRouter(hub, directory, bus, instanceID, logger.Named("router"))

	// Service 초기화
	userService := service.NewUserService(userRepo)
	eloService := service.NewELOService(cfg.EloKFactor)
	selector := service.NewProblemSelector(leetcode, matchRepo, topics, cfg.ProblemProviderTimeout, logger.Named("problems"))

	matchService := service.NewMatchService(
		userRepo,
		matchRepo,
		claims,
		selector,
		eloService,
		router,
		service.MatchServiceConfig{
			CountdownSeconds:  cfg.CountdownSeconds,
			TickInterval:      cfg.TickInterval,
			ResolutionRetries: cfg.ResolutionRetries,
		},
		logger.Named("match"),
	)
	matchService.SetForwarder(bus)

	matchmakingService := service.NewMatchmakingService(
		queue,
		userRepo,
		requestRepo,
		directory,
		locks,
		matchService,
		router,
		service.MatchmakingConfig{
			Interval: cfg.MatchmakingInterval,
			LockTTL:  cfg.MatchmakingLockTTL,
		},
		logger.Named("matchmaking"),
	)

	requestService := service.NewMatchRequestService(
		requestRepo,
		friendRepo,
		userRepo,
		queue,
		matchService,
		router,
		cfg.MatchRequestTTL,
		cfg.MatchRequestSweepInterval,
		logger.Named("match_requests"),
	)

	sessionService := service.NewSessionService(directory, hub, router, matchmakingService, matchService, logger.Named("session"))
	hub.SetHandler(sessionService)

	// 이전 실행에서 남은 이 인스턴스의 세션 정리
	if n, err := directory.PurgeInstance(ctx); err != nil {
		logger.Warn("Failed to purge stale sessions", "error", err)
	} else if n > 0 {
		logger.Info("Purged stale sessions", "count", n)
	}

	go hub.Run(ctx)
	if err := bus.Start(ctx, sessionService.HandleEvent); err != nil {
		logger.Fatal("Failed to subscribe to event bus", "error", err)
	}
	matchmakingService.Start()
	requestService.Start()
	logger.Info("Background workers started",
		"matchmakingInterval", cfg.MatchmakingInterval,
		"requestSweepInterval", cfg.MatchRequestSweepInterval,
	)

	// Handler 초기화
	apiLimiter := ratelimit.NewRateLimiter(100, 10)
	defer apiLimiter.Close()

	health := handlers.NewHealthHandler(map[string]handlers.HealthCheckFunc{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	health.AddStat("connections", hub.ConnectedCount)
	health.AddStat("liveMatches", matchService.LiveCount)

	engine := api.SetupRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration, cfg.JWTIssuer),
		APILimiter:    apiLimiter,
		RedisLimiter:  ratelimit.NewRedisRateLimiter(rdb, "ratelimit"),
		Health:        health,
		WebSocket:     handlers.NewWebSocketHandler(hub, websocket.NewUpgrader(cfg.CORSAllowedOrigins)),
		Matches:       handlers.NewMatchHandler(matchService),
		MatchRequests: handlers.NewMatchRequestHandler(requestService),
		Leaderboard:   handlers.NewLeaderboardHandler(userService),
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 새 매칭을 먼저 멈추고 진행 중 매치의 점유를 해제
	matchmakingService.Stop()
	requestService.Stop()
	matchService.Stop()
	bus.Stop()

	// 10초 타임아웃으로 종료
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	if _, err := directory.PurgeInstance(shutdownCtx); err != nil {
		logger.Warn("Failed to purge sessions", "error", err)
	}
	cancel()

	logger.Info("Server exited")
}
