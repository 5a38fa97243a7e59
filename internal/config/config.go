package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	NATSURL               string
	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedFile              string
	ScopeCacheTTLSeconds  int
	LowStockThreshold     int
	DefaultResetPassword  string
	InvoiceDelayMS        int
	LogLevel              string
}

// LoadDotEnv reads key=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		NATSURL:               os.Getenv("NATS_URL"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		SeedFile:              os.Getenv("SEED_FILE"),
		ScopeCacheTTLSeconds:  getPositiveInt("SCOPE_CACHE_TTL_SECONDS", 60),
		LowStockThreshold:     getPositiveInt("LOW_STOCK_THRESHOLD", 4),
		DefaultResetPassword:  getEnv("DEFAULT_RESET_PASSWORD", "1234"),
		InvoiceDelayMS:        getNonNegativeInt("INVOICE_DELAY_MS", 1500),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ScopeCacheTTL() time.Duration {
	return time.Duration(c.ScopeCacheTTLSeconds) * time.Second
}

func (c Config) InvoiceDelay() time.Duration {
	return time.Duration(c.InvoiceDelayMS) * time.Millisecond
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getNonNegativeInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
