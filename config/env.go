package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Redis   RedisConfig
	DB      DBConfig
	API     APIConfig
	ERP     ERPConfig
	Sweeper SweeperConfig
	Feed    FeedConfig
	Session SessionConfig
	Logger  LoggerConfig
}

type DBConfig struct {
	DSN string
}

type APIConfig struct {
	ListenAddr   string
	SharedSecret string
	RateLimit    string
}

type ERPConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

type FeedConfig struct {
	ReconnectBackoff time.Duration
}

type SessionConfig struct {
	JWTSecret string
	TTL       time.Duration
}

type LoggerConfig struct {
	Level string
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	batchSize, _ := strconv.Atoi(getEnv("SWEEPER_BATCH_SIZE", "50"))

	return Config{
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			DSN: getEnv("DATABASE_DSN", ""),
		},
		API: APIConfig{
			ListenAddr:   getEnv("API_LISTEN_ADDR", ":8080"),
			SharedSecret: getEnv("API_SHARED_SECRET", ""),
			RateLimit:    getEnv("API_RATE_LIMIT", "120-M"),
		},
		ERP: ERPConfig{
			BaseURL:        getEnv("ERP_BASE_URL", "http://localhost:9090"),
			APIKey:         getEnv("ERP_API_KEY", ""),
			RequestTimeout: getEnvDuration("ERP_REQUEST_TIMEOUT", 15*time.Second),
		},
		Sweeper: SweeperConfig{
			Interval:  getEnvDuration("SWEEPER_INTERVAL", 5*time.Minute),
			BatchSize: batchSize,
		},
		Feed: FeedConfig{
			ReconnectBackoff: getEnvDuration("FEED_RECONNECT_BACKOFF", 10*time.Second),
		},
		Session: SessionConfig{
			JWTSecret: getEnv("SESSION_JWT_SECRET", ""),
			TTL:       getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
