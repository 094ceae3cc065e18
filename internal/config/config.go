package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	DatabaseURL string

	RedisAddr string
	LockTTL   time.Duration

	KafkaBrokers            []string
	KafkaNotificationsTopic string
	KafkaEventsTopic        string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SMSGatewayURL   string
	SMSGatewayToken string

	SweepInterval      time.Duration
	FlaggedReminderAge time.Duration
}

// Load reads configuration from the environment. Empty optional settings
// select the in-process fallbacks.
func Load() (Config, error) {
	cfg := Config{
		Port:     fallback(os.Getenv("PORT"), "8080"),
		AppEnv:   fallback(os.Getenv("APP_ENV"), "development"),
		LogLevel: strings.TrimSpace(os.Getenv("LOG_LEVEL")),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:   strings.TrimSpace(os.Getenv("REDIS_ADDR")),

		KafkaBrokers:            parseCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaNotificationsTopic: fallback(os.Getenv("KAFKA_NOTIFICATIONS_TOPIC"), "notifications"),
		KafkaEventsTopic:        fallback(os.Getenv("KAFKA_EVENTS_TOPIC"), "transaction_completed"),

		SMTPHost:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPUsername: strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     strings.TrimSpace(os.Getenv("SMTP_FROM")),

		SMSGatewayURL:   strings.TrimSpace(os.Getenv("SMS_GATEWAY_URL")),
		SMSGatewayToken: strings.TrimSpace(os.Getenv("SMS_GATEWAY_TOKEN")),
	}

	port, err := strconv.Atoi(fallback(os.Getenv("SMTP_PORT"), "587"))
	if err != nil || port <= 0 {
		return Config{}, fmt.Errorf("SMTP_PORT must be a positive integer")
	}
	cfg.SMTPPort = port

	if cfg.LockTTL, err = duration("LOCK_TTL", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", "1h"); err != nil {
		return Config{}, err
	}
	if cfg.FlaggedReminderAge, err = duration("FLAGGED_REMINDER_AGE", "24h"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func duration(key, def string) (time.Duration, error) {
	raw := fallback(os.Getenv(key), def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
