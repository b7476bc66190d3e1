package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheckFunc 의존 서비스 상태 확인
type HealthCheckFunc func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]HealthCheckFunc
	stats   map[string]func() int
	timeout time.Duration
}

// NewHealthHandler checks: 이름 → 확인 함수 (예: "database", "redis")
func NewHealthHandler(checks map[string]HealthCheckFunc) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		stats:   make(map[string]func() int),
		timeout: 2 * time.Second,
	}
}

// AddStat 응답에 포함할 인스턴스 지표 (예: 연결 수)
func (h *HealthHandler) AddStat(name string, fn func() int) *HealthHandler {
	h.stats[name] = fn
	return h
}

// HealthCheck 하나라도 실패하면 503
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	components := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	stats := make(gin.H, len(h.stats))
	for name, fn := range h.stats {
		stats[name] = fn()
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"service":    "duel-backend",
		"components": components,
		"stats":      stats,
	})
}
