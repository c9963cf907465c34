package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Logger      LoggerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Fulfillment FulfillmentConfig
}

type ServerConfig struct {
	AppEnv      string
	GRPCPort    string
	MetricsPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers          []string
	OrdersTopic      string
	FulfillmentTopic string
	GroupID          string
}

type FulfillmentConfig struct {
	AllocationMaxRetries   int
	AllocationRetryBackoff time.Duration
	SlotsPerShelf          int
	BulkInsertBatchSize    int
	SweepStartHour         int
	SweepHorizonDays       int
	Timezone               string
	CatalogCacheTTL        time.Duration
	LockTTL                time.Duration
	DispatchClaimTimeout   time.Duration
}

// Location returns the configured timezone, falling back to UTC.
func (f FulfillmentConfig) Location() *time.Location {
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "dev"),
			GRPCPort:    getEnv("GRPC_PORT", ":8085"),
			MetricsPort: getEnv("METRICS_PORT", ":9105"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_fulfillment"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:          getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrdersTopic:      getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
			FulfillmentTopic: getEnv("KAFKA_TOPIC_FULFILLMENT", "fulfillment.events"),
			GroupID:          getEnv("KAFKA_GROUP_FULFILLMENT", "fulfillment"),
		},
		Fulfillment: FulfillmentConfig{
			AllocationMaxRetries:   getEnvInt("ALLOCATION_MAX_RETRIES", 5),
			AllocationRetryBackoff: getEnvDuration("ALLOCATION_RETRY_BACKOFF", 20*time.Millisecond),
			SlotsPerShelf:          getEnvInt("SLOTS_PER_SHELF", 5),
			BulkInsertBatchSize:    getEnvInt("BULK_INSERT_BATCH_SIZE", 500),
			SweepStartHour:         getEnvInt("SWEEP_START_HOUR", 8),
			SweepHorizonDays:       getEnvInt("SWEEP_HORIZON_DAYS", 14),
			Timezone:               getEnv("FULFILLMENT_TIMEZONE", "UTC"),
			CatalogCacheTTL:        getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
			LockTTL:                getEnvDuration("SETUP_LOCK_TTL", 30*time.Second),
			DispatchClaimTimeout:   getEnvDuration("DISPATCH_CLAIM_TIMEOUT", 2*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
