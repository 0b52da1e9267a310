package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, assembled from the environment.
type Config struct {
	Environment string
	Server      Server
	Log         Log
	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	Events      Events
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TxTimeout     time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Log selects the slog handler and level.
type Log struct {
	Level  string
	Format string
}

// Database holds the Postgres DSN. Empty selects in-memory stores, with
// accounts loaded from UsersSeedFile.
type Database struct {
	URL           string
	MaxOpenConns  int
	MaxIdleConns  int
	UsersSeedFile string
}

// RedisConfig configures the optional Redis client backing event deduplication.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the event consumer and the change-notification producer.
// Empty Brokers disables both.
type Kafka struct {
	Brokers          []string
	Group            string
	IDVTopic         string
	ProctoringTopic  string
	ChangesTopic     string
	DeadLetterTopic  string
	EnsureTopics     bool
	TopicPartitions  int32
	TopicReplication int16
}

// Events configures retry and deduplication of inbound status events.
type Events struct {
	MaxRetries int
	RetryDelay time.Duration
	DedupeTTL  time.Duration
}

// Enabled reports whether a broker is configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// ManagedTopics lists every topic the service reads or writes.
func (k Kafka) ManagedTopics() []string {
	topics := []string{k.IDVTopic, k.ProctoringTopic, k.ChangesTopic}
	if k.DeadLetterTopic != "" {
		topics = append(topics, k.DeadLetterTopic)
	}
	return topics
}

// IsProduction reports whether development defaults must be rejected.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: Server{
			Addr:          getEnv("NAMEAFFIRM_ADDR", ":8080"),
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:     getEnv("JWT_ISSUER", "nameaffirm"),
			JWTAudience:   getEnv("JWT_AUDIENCE", "nameaffirm-api"),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:           os.Getenv("DATABASE_URL"),
			UsersSeedFile: os.Getenv("USERS_SEED_FILE"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: Kafka{
			Brokers:         splitList(os.Getenv("KAFKA_BROKERS")),
			Group:           getEnv("KAFKA_GROUP", "nameaffirm"),
			IDVTopic:        getEnv("KAFKA_IDV_TOPIC", "idv.attempt.status"),
			ProctoringTopic: getEnv("KAFKA_PROCTORING_TOPIC", "proctoring.attempt.status"),
			ChangesTopic:    getEnv("KAFKA_CHANGES_TOPIC", "verified_name.changes"),
			DeadLetterTopic: os.Getenv("KAFKA_DEAD_LETTER_TOPIC"),
			EnsureTopics:    os.Getenv("KAFKA_ENSURE_TOPICS") == "true",
		},
	}

	var err error
	if cfg.Server.TxTimeout, err = getDuration("TX_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Server.ReadTimeout, err = getDuration("HTTP_READ_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Server.WriteTimeout, err = getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Server.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Database.MaxOpenConns, err = getInt("DATABASE_MAX_OPEN_CONNS", 20); err != nil {
		return Config{}, err
	}
	if cfg.Database.MaxIdleConns, err = getInt("DATABASE_MAX_IDLE_CONNS", 5); err != nil {
		return Config{}, err
	}
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 10); err != nil {
		return Config{}, err
	}
	if cfg.Redis.MinIdleConns, err = getInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Config{}, err
	}
	if cfg.Redis.DialTimeout, err = getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Redis.ReadTimeout, err = getDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Redis.WriteTimeout, err = getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Events.MaxRetries, err = getInt("EVENT_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.Events.RetryDelay, err = getDuration("EVENT_RETRY_DELAY", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Events.DedupeTTL, err = getDuration("EVENT_DEDUPE_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	partitions, err := getInt("KAFKA_TOPIC_PARTITIONS", 3)
	if err != nil {
		return Config{}, err
	}
	replication, err := getInt("KAFKA_TOPIC_REPLICATION", 1)
	if err != nil {
		return Config{}, err
	}
	cfg.Kafka.TopicPartitions = int32(partitions)
	cfg.Kafka.TopicReplication = int16(replication)

	return cfg, cfg.Validate()
}

// Validate rejects combinations that would start a misconfigured process.
func (c Config) Validate() error {
	if c.IsProduction() && c.Server.JWTSigningKey == devSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if c.Events.MaxRetries < 0 {
		return fmt.Errorf("EVENT_MAX_RETRIES must not be negative")
	}
	if c.Server.TxTimeout <= 0 {
		return fmt.Errorf("TX_TIMEOUT must be positive")
	}
	if c.Database.URL != "" && c.Database.UsersSeedFile != "" {
		return fmt.Errorf("USERS_SEED_FILE only applies without DATABASE_URL")
	}
	if c.Kafka.Enabled() && c.Kafka.Group == "" {
		return fmt.Errorf("KAFKA_GROUP is required when KAFKA_BROKERS is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
