package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config carries all runtime settings for the auction API. Values come from
// the environment with sensible development defaults; a .env file is loaded
// when present.
type Config struct {
	ServerPort string
	DBPath     string
	JWTSecret  string

	// NATSUrl is optional; when empty, notifications fall back to the
	// log-based dispatcher.
	NATSUrl string

	// SettleInterval is how often the settlement processor scans for
	// auctions past their end time.
	SettleInterval time.Duration

	// BidWaitTimeout bounds how long a bid submission may wait for the
	// per-auction serialization unit before being treated as not submitted.
	BidWaitTimeout time.Duration

	// PaymentRecoveryAge is how old a PENDING transaction must be before
	// the processor re-drives its charge (crash recovery).
	PaymentRecoveryAge time.Duration
}

// Load reads configuration from the environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	cfg := &Config{
		ServerPort:         getEnvOrDefault("PORT", "8080"),
		DBPath:             getEnvOrDefault("DB_PATH", "auction.db"),
		JWTSecret:          getEnvOrDefault("JWT_SECRET", "auction-secret-key"),
		NATSUrl:            os.Getenv("NATS_URL"),
		SettleInterval:     getDurationOrDefault("SETTLE_INTERVAL_SECONDS", 15*time.Second),
		BidWaitTimeout:     getDurationOrDefault("BID_WAIT_TIMEOUT_SECONDS", 5*time.Second),
		PaymentRecoveryAge: getDurationOrDefault("PAYMENT_RECOVERY_AGE_SECONDS", 5*time.Minute),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
