package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/util"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Observ     ObservabilityConfig
	Summarizer SummarizerConfig
	Catalog    CatalogConfig
	Business   BusinessConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig: an empty URL keeps reviews in memory only
type DatabaseConfig struct {
	URL string
}

// RedisConfig: an empty Addr uses the in-process summary cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig: no brokers disables review events and the summary warmer
type KafkaConfig struct {
	Brokers             []string
	TopicReviewEvents   string
	ConsumerGroup       string
	SummaryWarmerEnable bool
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

// SummarizerConfig: an empty URL uses the built-in local summarizer
type SummarizerConfig struct {
	URL     string
	Timeout time.Duration
}

type CatalogConfig struct {
	PageSize int
	SeedFile string
}

type BusinessConfig struct {
	IdempotencyTTL time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB := getEnvInt("REDIS_DB", 0)
	summarizerTimeout := getEnvInt("SUMMARIZER_TIMEOUT_MS", 3000)
	pageSize := getEnvInt("CATALOG_PAGE_SIZE", 6)
	idempotencyTTL := getEnvInt("IDEMPOTENCY_TTL_SECONDS", 86400)
	warmer, _ := strconv.ParseBool(getEnv("SUMMARY_WARMER_ENABLED", "true"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:             splitList(getEnv("KAFKA_BROKERS", "")),
			TopicReviewEvents:   getEnv("KAFKA_TOPIC_REVIEW_EVENTS", "review-events"),
			ConsumerGroup:       getEnv("KAFKA_CONSUMER_GROUP", "catalog-service-group"),
			SummaryWarmerEnable: warmer,
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
		Summarizer: SummarizerConfig{
			URL:     getEnv("SUMMARIZER_URL", ""),
			Timeout: time.Duration(summarizerTimeout) * time.Millisecond,
		},
		Catalog: CatalogConfig{
			PageSize: pageSize,
			SeedFile: getEnv("CATALOG_SEED_FILE", ""),
		},
		Business: BusinessConfig{
			IdempotencyTTL: time.Duration(idempotencyTTL) * time.Second,
		},
	}

	if cfg.Catalog.PageSize <= 0 {
		cfg.Catalog.PageSize = 6
	}
	if cfg.Summarizer.Timeout <= 0 {
		cfg.Summarizer.Timeout = 3 * time.Second
	}

	util.GetLogger().Info("Config loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.Bool("postgres", cfg.Database.URL != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Bool("kafka", len(cfg.Kafka.Brokers) > 0))
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
