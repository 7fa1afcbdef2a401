package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	LogLevel  string
	Remote    RemoteConfig
	Cache     CacheConfig
	InfluxDB  InfluxDBConfig
	Kafka     KafkaConfig
	Fetcher   FetcherConfig
	Hierarchy HierarchyConfig
	Processor ProcessorConfig
}

// RemoteConfig selects and configures the remote reading file service
type RemoteConfig struct {
	Backend   string // "minio" or "fs"
	FSRoot    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
}

// CacheConfig selects and configures the ingestion cache storage
type CacheConfig struct {
	Backend       string // "sqlite" or "redis"
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	URL          string
	Org          string
	Token        string
	Bucket       string
	Measurement  string
	QueryTimeout time.Duration
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Brokers       []string
	RequestTopic  string
	EventTopic    string
	GroupID       string
	ConsumerCount int
	BatchSize     int
	BatchTimeout  time.Duration
	PublishEvents bool
}

// FetcherConfig holds reading file ingestion settings
type FetcherConfig struct {
	MaxTransfers int
	Extensions   []string
	DayFirst     bool   // read 03/04 as 3 April
	ArchiveDir   string // empty disables the audit copy
}

// HierarchyConfig locates the hierarchy relation table
type HierarchyConfig struct {
	Path  string // .csv file or sqlite database
	Table string // table name when Path is a sqlite database
}

// ProcessorConfig holds processor-related configuration
type ProcessorConfig struct {
	WorkerCount int
	QueueSize   int
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Remote: RemoteConfig{
			Backend:   getEnv("REMOTE_BACKEND", "minio"),
			FSRoot:    getEnv("REMOTE_FS_ROOT", "./readings"),
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Secure:    getEnvBool("MINIO_SECURE", false),
			Bucket:    getEnv("MINIO_BUCKET", "meter-readings"),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "sqlite"),
			SQLitePath:    getEnv("CACHE_SQLITE_PATH", "ingestion_cache.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		InfluxDB: InfluxDBConfig{
			URL:          getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:          getEnv("INFLUXDB_ORG", "Solo"),
			Token:        getEnv("INFLUX_TOKEN", ""),
			Bucket:       getEnv("INFLUXDB_BUCKET", "meter-readings"),
			Measurement:  getEnv("INFLUXDB_MEASUREMENT", "meter_reading"),
			QueryTimeout: getEnvDuration("INFLUXDB_QUERY_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			RequestTopic:  getEnv("KAFKA_REQUEST_TOPIC", "meter-fetch-requests"),
			EventTopic:    getEnv("KAFKA_EVENT_TOPIC", "meter-ingestion-events"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "meter-hierarchy-engine"),
			ConsumerCount: getEnvInt("KAFKA_CONSUMER_COUNT", 1),
			BatchSize:     getEnvInt("KAFKA_BATCH_SIZE", 100),
			BatchTimeout:  getEnvDuration("KAFKA_BATCH_TIMEOUT", 2*time.Second),
			PublishEvents: getEnvBool("KAFKA_PUBLISH_EVENTS", false),
		},
		Fetcher: FetcherConfig{
			MaxTransfers: getEnvInt("FETCH_MAX_TRANSFERS", 4),
			Extensions:   getEnvStringSlice("FETCH_EXTENSIONS", []string{".csv", ".tsv"}),
			DayFirst:     getEnvBool("FETCH_DAY_FIRST", false),
			ArchiveDir:   getEnv("FETCH_ARCHIVE_DIR", ""),
		},
		Hierarchy: HierarchyConfig{
			Path:  getEnv("HIERARCHY_PATH", "hierarchy.csv"),
			Table: getEnv("HIERARCHY_TABLE", "meters"),
		},
		Processor: ProcessorConfig{
			WorkerCount: getEnvInt("PROCESSOR_WORKER_COUNT", 4),
			QueueSize:   getEnvInt("PROCESSOR_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and non-positive limits
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case "minio", "fs":
	default:
		return fmt.Errorf("invalid REMOTE_BACKEND %q: want minio or fs", c.Remote.Backend)
	}
	switch c.Cache.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: want sqlite or redis", c.Cache.Backend)
	}
	if c.Fetcher.MaxTransfers < 1 {
		return fmt.Errorf("FETCH_MAX_TRANSFERS must be at least 1, got %d", c.Fetcher.MaxTransfers)
	}
	if c.Processor.WorkerCount < 1 {
		return fmt.Errorf("PROCESSOR_WORKER_COUNT must be at least 1, got %d", c.Processor.WorkerCount)
	}
	if len(c.Fetcher.Extensions) == 0 {
		return fmt.Errorf("FETCH_EXTENSIONS must list at least one extension")
	}
	return nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
