package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type LedgerConfig struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	OperationTimeout  time.Duration
	DefaultQueryLimit int
	MaxQueryLimit     int
	GroupCacheTTL     time.Duration
	KafkaBrokers      []string
	KafkaTopic        string
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		MaxRetries:        getEnvAsInt("LEDGER_MAX_RETRIES", 3),
		RetryBackoff:      getEnvAsDuration("LEDGER_RETRY_BACKOFF", 50*time.Millisecond),
		OperationTimeout:  getEnvAsDuration("LEDGER_OP_TIMEOUT", 5*time.Second),
		DefaultQueryLimit: getEnvAsInt("LEDGER_QUERY_LIMIT", 50),
		MaxQueryLimit:     getEnvAsInt("LEDGER_QUERY_LIMIT_MAX", 500),
		GroupCacheTTL:     getEnvAsDuration("REPORT_GROUP_CACHE_TTL", 30*time.Second),
		KafkaBrokers:      getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "talent-transactions"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
