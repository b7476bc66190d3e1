package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.MatchmakingInterval)
	assert.Equal(t, 3, cfg.CountdownSeconds)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 5*time.Minute, cfg.MatchRequestTTL)
	assert.Equal(t, 32.0, cfg.EloKFactor)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestConfig_Overrides(t *testing.T) {
	cfg, err := fromViper(newTestViper(map[string]interface{}{
		"ENV":                  "production",
		"JWT_SECRET":           "s3cret",
		"JWT_ISSUER":           "duel-backend",
		"MATCHMAKING_INTERVAL": "5s",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
		"RESOLUTION_RETRIES":   0,
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5*time.Second, cfg.MatchmakingInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 1, cfg.ResolutionRetries)
	assert.Equal(t, "duel-backend", cfg.JWTIssuer)
}

func TestConfig_RejectsInvalidDurations(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{
		"MATCH_TICK_INTERVAL": "0s",
	}))
	assert.Error(t, err)
}

func TestConfig_ProductionRequiresSecret(t *testing.T) {
	_, err := fromViper(newTestViper(map[string]interface{}{
		"ENV": "production",
	}))
	assert.Error(t, err)
}
