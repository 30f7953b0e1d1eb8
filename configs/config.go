package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func Config(key string) string {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	return os.Getenv(key)
}

// CommissionRate is the platform's share of a settled payment. It is the
// single source of truth for the fee/payout split: both the ledger entries
// and the stored teacher payout are derived from it.
func CommissionRate() float64 {
	rate, err := strconv.ParseFloat(Config("PLATFORM_COMMISSION_RATE"), 64)
	if err != nil || rate <= 0 || rate >= 1 {
		return 0.20
	}
	return rate
}

func PayoutRetryMaxAttempts() int {
	attempts, err := strconv.Atoi(Config("PAYOUT_RETRY_MAX_ATTEMPTS"))
	if err != nil || attempts < 1 {
		return 3
	}
	return attempts
}

func PayoutRetryBackoff() time.Duration {
	minutes, err := strconv.Atoi(Config("PAYOUT_RETRY_BACKOFF_MINUTES"))
	if err != nil || minutes < 1 {
		return time.Hour
	}
	return time.Duration(minutes) * time.Minute
}
