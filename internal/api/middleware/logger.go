package middleware

import (
	"time"

	"github.com/codeduel/duel-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Logger HTTP 요청 로깅 미들웨어
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		// token 쿼리는 기록하지 않음
		if c.Query("token") != "" {
			query = ""
		}

		kv := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if userID, ok := UserID(c); ok {
			kv = append(kv, "userId", userID)
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("HTTP Request", kv...)
		default:
			logger.Info("HTTP Request", kv...)
		}
	}
}
