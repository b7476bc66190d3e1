package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration
	JWTIssuer     string

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	MatchmakingInterval time.Duration
	MatchmakingLockTTL  time.Duration

	// Match lifecycle
	CountdownSeconds  int
	TickInterval      time.Duration
	ResolutionRetries int
	EloKFactor        float64
	DefaultElo        int

	// Friend match requests
	MatchRequestTTL           time.Duration
	MatchRequestSweepInterval time.Duration

	// Problem provider
	ProblemProviderURL     string
	ProblemProviderTimeout time.Duration
	ProblemProviderCookie  string

	// WebSocket
	WSMessageBurst int64
	WSMessageRate  int64
}

var defaults = map[string]interface{}{
	"PORT":                         "8080",
	"ENV":                          "development",
	"LOG_LEVEL":                    "info",
	"DATABASE_URL":                 "",
	"REDIS_URL":                    "redis://localhost:6379/0",
	"JWT_SECRET":                   "change-me",
	"JWT_EXPIRATION":               "24h",
	"JWT_ISSUER":                   "",
	"CORS_ALLOWED_ORIGINS":         "http://localhost:3000",
	"MATCHMAKING_INTERVAL":         "3s",
	"MATCHMAKING_LOCK_TTL":         "10s",
	"MATCH_COUNTDOWN_SECONDS":      3,
	"MATCH_TICK_INTERVAL":          "1s",
	"RESOLUTION_RETRIES":           3,
	"ELO_K_FACTOR":                 32.0,
	"DEFAULT_ELO":                  1200,
	"MATCH_REQUEST_TTL":            "5m",
	"MATCH_REQUEST_SWEEP_INTERVAL": "30s",
	"PROBLEM_PROVIDER_URL":         "https://leetcode.com/graphql",
	"PROBLEM_PROVIDER_TIMEOUT":     "8s",
	"PROBLEM_PROVIDER_COOKIE":      "",
	"WS_MESSAGE_BURST":             20,
	"WS_MESSAGE_RATE":              10,
}

// Load .env 파일과 환경 변수에서 설정 로드
func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                      v.GetString("PORT"),
		Env:                       v.GetString("ENV"),
		LogLevel:                  v.GetString("LOG_LEVEL"),
		DatabaseURL:               v.GetString("DATABASE_URL"),
		RedisURL:                  v.GetString("REDIS_URL"),
		JWTSecret:                 v.GetString("JWT_SECRET"),
		JWTExpiration:             v.GetDuration("JWT_EXPIRATION"),
		JWTIssuer:                 v.GetString("JWT_ISSUER"),
		CORSAllowedOrigins:        splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		MatchmakingInterval:       v.GetDuration("MATCHMAKING_INTERVAL"),
		MatchmakingLockTTL:        v.GetDuration("MATCHMAKING_LOCK_TTL"),
		CountdownSeconds:          v.GetInt("MATCH_COUNTDOWN_SECONDS"),
		TickInterval:              v.GetDuration("MATCH_TICK_INTERVAL"),
		ResolutionRetries:         v.GetInt("RESOLUTION_RETRIES"),
		EloKFactor:                v.GetFloat64("ELO_K_FACTOR"),
		DefaultElo:                v.GetInt("DEFAULT_ELO"),
		MatchRequestTTL:           v.GetDuration("MATCH_REQUEST_TTL"),
		MatchRequestSweepInterval: v.GetDuration("MATCH_REQUEST_SWEEP_INTERVAL"),
		ProblemProviderURL:        v.GetString("PROBLEM_PROVIDER_URL"),
		ProblemProviderTimeout:    v.GetDuration("PROBLEM_PROVIDER_TIMEOUT"),
		ProblemProviderCookie:     v.GetString("PROBLEM_PROVIDER_COOKIE"),
		WSMessageBurst:            v.GetInt64("WS_MESSAGE_BURST"),
		WSMessageRate:             v.GetInt64("WS_MESSAGE_RATE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MatchmakingInterval <= 0 {
		return fmt.Errorf("MATCHMAKING_INTERVAL must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("MATCH_TICK_INTERVAL must be positive")
	}
	if c.CountdownSeconds < 0 {
		return fmt.Errorf("MATCH_COUNTDOWN_SECONDS must not be negative")
	}
	if c.MatchRequestTTL <= 0 {
		return fmt.Errorf("MATCH_REQUEST_TTL must be positive")
	}
	if c.IsProduction() && c.JWTSecret == defaults["JWT_SECRET"] {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.ResolutionRetries < 1 {
		c.ResolutionRetries = 1
	}
	return nil
}

// IsProduction 운영 환경 여부
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
