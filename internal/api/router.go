package api

import (
	"github.com/codeduel/duel-backend/internal/api/handlers"
	"github.com/codeduel/duel-backend/internal/api/middleware"
	"github.com/codeduel/duel-backend/internal/config"
	jwtutil "github.com/codeduel/duel-backend/pkg/jwt"
	"github.com/codeduel/duel-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// Dependencies 라우터가 사용하는 핸들러와 공용 컴포넌트
type Dependencies struct {
	Config       *config.Config
	JWT          *jwtutil.JWTManager
	APILimiter   *ratelimit.RateLimiter
	RedisLimiter *ratelimit.RedisRateLimiter

	Health        *handlers.HealthHandler
	WebSocket     *handlers.WebSocketHandler
	Matches       *handlers.MatchHandler
	MatchRequests *handlers.MatchRequestHandler
	Leaderboard   *handlers.LeaderboardHandler
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.Config.CORSAllowedOrigins))

	auth := middleware.Auth(deps.JWT)

	// Health check
	router.GET("/health", deps.Health.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	if deps.APILimiter != nil {
		v1.Use(middleware.GeneralAPIRateLimit(deps.APILimiter))
	}
	{
		// WebSocket endpoint (토큰은 query 로도 전달 가능)
		v1.GET("/ws", auth, deps.WebSocket.HandleWebSocket)

		v1.GET("/leaderboard", deps.Leaderboard.GetLeaderboard)

		// Match routes
		matches := v1.Group("/matches")
		matches.Use(auth)
		{
			matches.GET("/history", deps.Matches.GetHistory)
			matches.GET("/:id", deps.Matches.GetMatch)
		}

		// Friend match requests
		requests := v1.Group("/match-requests")
		requests.Use(auth)
		{
			send := []gin.HandlerFunc{}
			if deps.RedisLimiter != nil {
				send = append(send, middleware.MatchRequestRateLimit(deps.RedisLimiter))
			}
			send = append(send, deps.MatchRequests.Send)

			requests.POST("", send...)
			requests.GET("", deps.MatchRequests.ListPending)
			requests.POST("/:id/accept", deps.MatchRequests.Accept)
			requests.POST("/:id/reject", deps.MatchRequests.Reject)
			requests.POST("/:id/cancel", deps.MatchRequests.Cancel)
		}

		// User routes
		users := v1.Group("/users")
		users.Use(auth)
		{
			users.GET("/me/match-state", deps.MatchRequests.MatchState)
		}
	}

	return router
}
