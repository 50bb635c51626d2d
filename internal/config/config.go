package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingSecret = errors.New("ACCESS_TOKEN_SECRET is not set")

type Config struct {
	HTTPAddr            string
	DatabaseURL         string
	TokenSecret         string
	RabbitURL           string
	OrdersExchange      string
	StatusExchange      string
	StatusQueue         string
	OutboxInterval      time.Duration
	OutboxBatchSize     int
	ShutdownGracePeriod time.Duration
	LogLevel            slog.Level
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// LoadDotEnv reads a .env file from the working directory when one exists.
// Variables already present in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

func Load() Config {
	port := getEnv("PORT", "5000")

	return Config{
		HTTPAddr:            ":" + port,
		DatabaseURL:         databaseURL(),
		TokenSecret:         getEnv("ACCESS_TOKEN_SECRET", ""),
		RabbitURL:           getEnv("RABBIT_URL", ""),
		OrdersExchange:      getEnv("ORDERS_EXCHANGE", "orders.events"),
		StatusExchange:      getEnv("ORDERS_STATUS_EXCHANGE", "orders.status-commands"),
		StatusQueue:         getEnv("ORDERS_STATUS_QUEUE", "orders.status-updates"),
		OutboxInterval:      parseDuration("ORDERS_OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:     parseInt("ORDERS_OUTBOX_BATCH", 32),
		ShutdownGracePeriod: parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:            parseLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate reports settings the server cannot run without.
func (c Config) Validate() error {
	if c.TokenSecret == "" {
		return ErrMissingSecret
	}
	return nil
}

// MessagingEnabled is true when order events should be exchanged with RabbitMQ.
func (c Config) MessagingEnabled() bool {
	return c.RabbitURL != ""
}

func databaseURL() string {
	if raw := getEnv("DATABASE_URL", ""); raw != "" {
		return raw
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   getEnv("DB_HOST", "localhost:5432"),
		Path:   "/" + getEnv("DB_NAME", "deltaCar"),
	}
	user := getEnv("DB_USER", "")
	if pass, ok := os.LookupEnv("DB_PASSWORD"); ok && user != "" {
		u.User = url.UserPassword(user, pass)
	} else if user != "" {
		u.User = url.User(user)
	}
	u.RawQuery = fmt.Sprintf("sslmode=%s", getEnv("DB_SSLMODE", "disable"))
	return u.String()
}

func parseDuration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}

func parseInt(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return def
}

func parseLevel(key string, def slog.Level) slog.Level {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return def
	}
	return lvl
}
