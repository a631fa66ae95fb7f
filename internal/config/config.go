package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Import      ImportConfig
	Query       QueryConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and exchange settings. URL may be
// empty, in which case import events are not published.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// ImportConfig holds bulk-import settings
type ImportConfig struct {
	SourceURLs          []string
	FetchTimeoutSeconds int
	FetchMaxRetries     int
}

// QueryConfig holds measurement query defaults and bounds
type QueryConfig struct {
	DefaultLimit         int
	MaxLimit             int
	DefaultBucketMinutes int
	MinBucketMinutes     int
	MaxBucketMinutes     int
}

// The two public challenge dumps, one per meter. Overridable for tests and
// alternative deployments via IMPORT_SOURCE_URLS.
var defaultSourceURLs = []string{
	"https://exnaton-public-s3-bucket20230329123331528000000001.s3.eu-central-1.amazonaws.com/challenge/95ce3367-cbce-4a4d-bbe3-da082831d7bd.json",
	"https://exnaton-public-s3-bucket20230329123331528000000001.s3.eu-central-1.amazonaws.com/challenge/1db7649e-9342-4e04-97c7-f0ebb88ed1f8.json",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "energy-measurements-api"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8080),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        getEnv("RABBITMQ_URL", ""),
			Exchange:   getEnv("RABBITMQ_EXCHANGE", "energy-measurements.events.exchange"),
			RoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "measurements.import.completed"),
		},
		Import: ImportConfig{
			SourceURLs:          getEnvAsSlice("IMPORT_SOURCE_URLS", defaultSourceURLs),
			FetchTimeoutSeconds: getEnvAsInt("IMPORT_FETCH_TIMEOUT_SECONDS", 30),
			FetchMaxRetries:     getEnvAsInt("IMPORT_FETCH_MAX_RETRIES", 2),
		},
		Query: QueryConfig{
			DefaultLimit:         getEnvAsInt("QUERY_DEFAULT_LIMIT", 50),
			MaxLimit:             getEnvAsInt("QUERY_MAX_LIMIT", 100),
			DefaultBucketMinutes: getEnvAsInt("QUERY_DEFAULT_BUCKET_MINUTES", 15),
			MinBucketMinutes:     getEnvAsInt("QUERY_MIN_BUCKET_MINUTES", 15),
			MaxBucketMinutes:     getEnvAsInt("QUERY_MAX_BUCKET_MINUTES", 180),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if len(cfg.Import.SourceURLs) == 0 {
		return nil, fmt.Errorf("IMPORT_SOURCE_URLS must name at least one dump")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
