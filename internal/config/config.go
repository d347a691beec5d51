package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures all tunable parameters for the API process. Values are
// loaded from environment variables with defaults that let the binary run
// locally without excessive setup.
type Config struct {
	HTTPPort string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisURL string

	KafkaBrokers     []string
	KafkaLedgerTopic string

	JWTSecret string

	// Dispatch
	DriverSearchRadiusKm float64
	LockTimeout          time.Duration

	// Negotiation
	MinProposalPrice float64

	// Settlement
	MaxFareMultiplier float64
	WalletOverdraft   float64
	RatingIncrement   float64
	MaxRating         float64

	LogLevel string
}

func defaults() Config {
	return Config{
		HTTPPort:             "8080",
		DBPort:               "5432",
		KafkaLedgerTopic:     "ledger-entries",
		DriverSearchRadiusKm: 10.0,
		LockTimeout:          3 * time.Second,
		MinProposalPrice:     100,
		MaxFareMultiplier:    2.0,
		WalletOverdraft:      0,
		RatingIncrement:      0.1,
		MaxRating:            5.0,
		LogLevel:             "info",
	}
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := defaults()
	var errs []error

	setString(&cfg.HTTPPort, "PORT")
	setString(&cfg.DBHost, "DB_HOST")
	setString(&cfg.DBUser, "DB_USER")
	setString(&cfg.DBPassword, "DB_PASSWORD")
	setString(&cfg.DBName, "DB_NAME")
	setString(&cfg.DBPort, "DB_PORT")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.KafkaLedgerTopic, "KAFKA_LEDGER_TOPIC")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	setFloat(&cfg.DriverSearchRadiusKm, "DRIVER_SEARCH_RADIUS_KM", &errs)
	setDuration(&cfg.LockTimeout, "ROW_LOCK_TIMEOUT", &errs)
	setFloat(&cfg.MinProposalPrice, "MIN_PROPOSAL_PRICE", &errs)
	setFloat(&cfg.MaxFareMultiplier, "MAX_FARE_MULTIPLIER", &errs)
	setFloat(&cfg.WalletOverdraft, "WALLET_OVERDRAFT", &errs)
	setFloat(&cfg.RatingIncrement, "RATING_INCREMENT", &errs)
	setFloat(&cfg.MaxRating, "MAX_RATING", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.MaxFareMultiplier < 1 {
		errs = append(errs, fmt.Errorf("MAX_FARE_MULTIPLIER must be >= 1"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}

	return cfg, errors.Join(errs...)
}

// DSN renders the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

func setString(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func setFloat(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setDuration(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
