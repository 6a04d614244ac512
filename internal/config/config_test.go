package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(env map[string]string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range env {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]string{"DATABASE_URL": "postgres://localhost/db"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BusySourceBookings, cfg.BusySource)
	assert.Equal(t, 15*time.Minute, cfg.SlotStep)
	assert.Equal(t, 30*24*time.Hour, cfg.BookingHorizon)
	assert.Equal(t, 5*time.Minute, cfg.ScheduleCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 8, cfg.ResolverConcurrency)
	assert.Empty(t, cfg.StaticTokens)
	assert.False(t, cfg.Google.Enabled())
}

func TestFromViper_StaticTokens(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]string{
		"DATABASE_URL":  "postgres://localhost/db",
		"STATIC_TOKENS": " a, ,b ",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.StaticTokens)
}

func TestFromViper_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{}},
		{"unknown busy source", map[string]string{"DATABASE_URL": "x", "BUSY_SOURCE": "outlook"}},
		{"google without credentials", map[string]string{"DATABASE_URL": "x", "BUSY_SOURCE": "google"}},
		{"zero step", map[string]string{"DATABASE_URL": "x", "SLOT_STEP_MINUTES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromViper(newViper(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestFromViper_GoogleBusySource(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]string{
		"DATABASE_URL":         "x",
		"BUSY_SOURCE":          "Google",
		"GOOGLE_CLIENT_ID":     "id",
		"GOOGLE_CLIENT_SECRET": "secret",
		"GOOGLE_REDIRECT_URL":  "http://localhost/oauth2callback",
	}))
	require.NoError(t, err)
	assert.Equal(t, BusySourceGoogle, cfg.BusySource)
	assert.True(t, cfg.Google.Enabled())
}
