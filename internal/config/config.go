package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL      string
	RedisURL         string
	ScheduleCacheTTL time.Duration

	// BusySource picks where busy intervals come from: "google" or "bookings".
	BusySource          string
	ResolverConcurrency int
	SlotStep            time.Duration
	BookingHorizon      time.Duration

	Google GoogleConfig

	StaticTokens  []string
	JWTHMACSecret string

	RabbitMQURL          string
	RabbitMQBookingQueue string

	ShutdownTimeout time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

const (
	BusySourceGoogle   = "google"
	BusySourceBookings = "bookings"
)

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCHEDULE_CACHE_TTL", "5m")
	v.SetDefault("BUSY_SOURCE", BusySourceBookings)
	v.SetDefault("RESOLVER_CONCURRENCY", 8)
	v.SetDefault("SLOT_STEP_MINUTES", 15)
	v.SetDefault("BOOKING_HORIZON_DAYS", 30)
	v.SetDefault("RABBITMQ_BOOKING_QUEUE", "booking.confirmed")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                 v.GetString("PORT"),
		Env:                  v.GetString("APP_ENV"),
		LogLevel:             strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		RedisURL:             v.GetString("REDIS_URL"),
		ScheduleCacheTTL:     v.GetDuration("SCHEDULE_CACHE_TTL"),
		BusySource:           strings.ToLower(strings.TrimSpace(v.GetString("BUSY_SOURCE"))),
		ResolverConcurrency:  v.GetInt("RESOLVER_CONCURRENCY"),
		SlotStep:             time.Duration(v.GetInt("SLOT_STEP_MINUTES")) * time.Minute,
		BookingHorizon:       time.Duration(v.GetInt("BOOKING_HORIZON_DAYS")) * 24 * time.Hour,
		JWTHMACSecret:        strings.TrimSpace(v.GetString("JWT_HMAC_SECRET")),
		RabbitMQURL:          v.GetString("RABBITMQ_URL"),
		RabbitMQBookingQueue: v.GetString("RABBITMQ_BOOKING_QUEUE"),
		ShutdownTimeout:      v.GetDuration("SHUTDOWN_TIMEOUT"),
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
	}
	for _, t := range strings.Split(v.GetString("STATIC_TOKENS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.StaticTokens = append(cfg.StaticTokens, t)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	switch cfg.BusySource {
	case BusySourceBookings:
	case BusySourceGoogle:
		if !cfg.Google.Enabled() {
			return nil, errors.New("BUSY_SOURCE=google needs GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL")
		}
	default:
		return nil, errors.New("BUSY_SOURCE must be google or bookings")
	}
	if cfg.SlotStep <= 0 {
		return nil, errors.New("SLOT_STEP_MINUTES must be positive")
	}
	if cfg.BookingHorizon <= 0 {
		return nil, errors.New("BOOKING_HORIZON_DAYS must be positive")
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
