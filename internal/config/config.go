package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	ServiceName     string
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Remote commerce API
	APIBaseURL string
	APITimeout time.Duration

	// Storage
	StorageDriver string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string

	// Cookies
	SessionSecret  string
	CookieBlockKey string
	CookieSecure   bool
	ProviderSecret string
	ProviderCookie string

	GuestCartTTL   time.Duration
	SessionIdleTTL time.Duration
	CatalogTTL     time.Duration

	// Order events
	KafkaBrokers     []string
	OrderEventsTopic string
	KafkaGroupID     string

	OTelStdout bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	return &Config{
		ServiceName:     getEnv("SERVICE_NAME", "storefront"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:5000/api"),
		APITimeout: getDurationEnv("API_TIMEOUT", 15*time.Second),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageRedis)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "storefront"),

		SessionSecret:  getEnv("SESSION_SECRET", "change-me-session-secret-32bytes"),
		CookieBlockKey: getEnv("COOKIE_BLOCK_KEY", ""),
		CookieSecure:   getBoolEnv("COOKIE_SECURE", false),
		ProviderSecret: getEnv("PROVIDER_SECRET", "change-me-provider-secret"),
		ProviderCookie: getEnv("PROVIDER_COOKIE", "next-auth.session-token"),

		GuestCartTTL:   getDurationEnv("GUEST_CART_TTL", 30*24*time.Hour),
		SessionIdleTTL: getDurationEnv("SESSION_IDLE_TTL", 30*time.Minute),
		CatalogTTL:     getDurationEnv("CATALOG_TTL", 5*time.Minute),

		KafkaBrokers:     getSliceEnv("KAFKA_BROKERS", nil),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "storefront-consumer"),

		OTelStdout: getBoolEnv("OTEL_STDOUT", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("invalid duration %q for %s, using %s", value, key, defaultValue)
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
