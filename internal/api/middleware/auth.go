package middleware

import (
	"net/http"
	"strings"

	jwtutil "github.com/codeduel/duel-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// ContextUserID 인증된 사용자 ID 가 저장되는 gin context 키
const ContextUserID = "userId"

// Auth JWT 인증 미들웨어
// 브라우저 WebSocket 은 헤더를 못 붙이므로 token 쿼리도 허용
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID())
		c.Set("username", claims.Username)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}

	// "Bearer <token>" 형식 파싱
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// UserID 인증 미들웨어가 저장한 사용자 ID
func UserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
