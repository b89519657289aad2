package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	LockerLocal = "local"
	LockerRedis = "redis"
)

type Config struct {
	Env             string        // development, production
	HTTPPort        string        // default 8080
	StoreDriver     string        // postgres, memory
	PostgresDSN     string        // required for the postgres store
	RedisAddr       string        // host:port
	RedisUsername   string        // redis username
	RedisPassword   string        // redis password
	LockDriver      string        // redis, local
	LockTTL         time.Duration // how long a subject lock lives
	LockWait        time.Duration // how long a booking waits for a busy subject
	ShutdownTimeout time.Duration // graceful shutdown timeout

	SlotGranularity time.Duration // length of an offered slot
	BookingHorizon  time.Duration // furthest a booking may be placed ahead of now
	DefaultDuration int           // minutes, used when a booking omits duration
	TimeZone        string        // IANA zone calendar dates are read in

	JWTSecret string

	LogLevel  string
	LogFormat string // json, console

	WeatherBaseURL  string
	WeatherTimeout  time.Duration
	WeatherCacheTTL time.Duration
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TimeZone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HorizonDays is BookingHorizon in whole days, for messages.
func (c Config) HorizonDays() int {
	return int(c.BookingHorizon / (24 * time.Hour))
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		StoreDriver:     getEnv("STORE_DRIVER", StorePostgres),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		LockDriver:      getEnv("LOCK_DRIVER", LockerRedis),
		LockTTL:         getDuration("LOCK_TTL", 5*time.Second),
		LockWait:        getDuration("LOCK_WAIT", 2*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		SlotGranularity: getDuration("SLOT_GRANULARITY", 15*time.Minute),
		BookingHorizon:  getDuration("BOOKING_HORIZON", 30*24*time.Hour),
		DefaultDuration: getInt("DEFAULT_DURATION", 30),
		TimeZone:        getEnv("TIMEZONE", "UTC"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		WeatherBaseURL:  getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com"),
		WeatherTimeout:  getDuration("WEATHER_TIMEOUT", 3*time.Second),
		WeatherCacheTTL: getDuration("WEATHER_CACHE_TTL", 30*time.Minute),
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		addr, username, password, err := redisclient.ParseURL(redisURL)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		cfg.RedisAddr = addr
		cfg.RedisUsername = username
		cfg.RedisPassword = password
	} else {
		cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
		cfg.RedisUsername = getEnv("REDIS_USERNAME", "")
		cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	var errs []string

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN is required")
		}
	case StoreMemory:
		if cfg.IsProduction() {
			errs = append(errs, "STORE_DRIVER=memory is not allowed in production")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER must be %q or %q", StorePostgres, StoreMemory))
	}

	if cfg.LockDriver != LockerRedis && cfg.LockDriver != LockerLocal {
		errs = append(errs, fmt.Sprintf("LOCK_DRIVER must be %q or %q", LockerRedis, LockerLocal))
	}
	if cfg.SlotGranularity <= 0 {
		errs = append(errs, "SLOT_GRANULARITY must be positive")
	}
	if cfg.BookingHorizon < 0 {
		errs = append(errs, "BOOKING_HORIZON cannot be negative")
	}
	if cfg.DefaultDuration <= 0 {
		errs = append(errs, "DEFAULT_DURATION must be a positive number of minutes")
	}
	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		errs = append(errs, fmt.Sprintf("TIMEZONE %q: %v", cfg.TimeZone, err))
	}
	if cfg.JWTSecret == "" && cfg.IsProduction() {
		errs = append(errs, "JWT_SECRET is required in production")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Fprintf(os.Stderr, "invalid integer for %s=%q, using default %d\n", key, v, def)
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}
