package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FinalizeInline = "inline"
	FinalizeKafka  = "kafka"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	S3        S3Config
	Analysis  AnalysisConfig
	Diagnosis DiagnosisConfig
	Kafka     KafkaConfig
	Firebase  FirebaseConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	App       AppConfig
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	StorageAPIKey   string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN       string
	MaxConns  int
	MinConns  int
	ConnectTO time.Duration
	PingTO    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type S3Config struct {
	Region       string
	Bucket       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	OriginPrefix string
	PutExpiry    time.Duration
	GetExpiry    time.Duration
}

type AnalysisConfig struct {
	Endpoint  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type DiagnosisConfig struct {
	MaxParallel       int
	SweepSpec         string
	UnreceivedGrace   time.Duration
	FinalizeTransport string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type FirebaseConfig struct {
	CredentialsPath string
}

type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type TelemetryConfig struct {
	SentryDSN   string
	Environment string
}

type AppConfig struct {
	Environment string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			StorageAPIKey:   getEnv("STORAGE_EVENT_API_KEY", ""),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:       getEnv("DB_DSN", ""),
			MaxConns:  getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:  getEnvAsInt("DB_MIN_CONNS", 2),
			ConnectTO: getEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
			PingTO:    getEnvAsDuration("DB_PING_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		S3: S3Config{
			Region:       getEnv("AWS_REGION", "ap-northeast-2"),
			Bucket:       getEnv("S3_BUCKET", ""),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
			OriginPrefix: getEnv("S3_ORIGIN_PREFIX", "diagnosis/origin/"),
			PutExpiry:    getEnvAsDuration("S3_PUT_EXPIRY", 10*time.Minute),
			GetExpiry:    getEnvAsDuration("S3_GET_EXPIRY", 60*time.Minute),
		},
		Analysis: AnalysisConfig{
			Endpoint:  getEnv("ANALYSIS_ENDPOINT", "http://localhost:8000/beehives/diagnosis"),
			Timeout:   getEnvAsDuration("ANALYSIS_TIMEOUT", 120*time.Second),
			RateLimit: getEnvAsFloat("ANALYSIS_RATE_LIMIT", 4),
			Burst:     getEnvAsInt("ANALYSIS_RATE_BURST", 8),
		},
		Diagnosis: DiagnosisConfig{
			MaxParallel:       getEnvAsInt("DIAGNOSIS_MAX_PARALLEL", 8),
			SweepSpec:         getEnv("DIAGNOSIS_SWEEP_SPEC", "0 */5 * * * *"),
			UnreceivedGrace:   getEnvAsDuration("DIAGNOSIS_UNRECEIVED_GRACE", 5*time.Minute),
			FinalizeTransport: strings.ToLower(getEnv("FINALIZE_TRANSPORT", FinalizeInline)),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_FINALIZE_TOPIC", "diagnosis.finalize"),
			GroupID: getEnv("KAFKA_GROUP_ID", "diagnosis-finalizer"),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
		Telemetry: TelemetryConfig{
			SentryDSN:   getEnv("SENTRY_DSN", ""),
			Environment: env,
		},
		App: AppConfig{
			Environment: env,
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}

	if c.Analysis.Endpoint == "" {
		return fmt.Errorf("ANALYSIS_ENDPOINT is required")
	}

	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive")
	}

	if c.Diagnosis.MaxParallel < 1 {
		return fmt.Errorf("DIAGNOSIS_MAX_PARALLEL must be at least 1")
	}

	if c.App.Environment == "production" && c.Firebase.CredentialsPath == "" {
		return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required in production")
	}

	switch c.Diagnosis.FinalizeTransport {
	case FinalizeInline:
	case FinalizeKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_FINALIZE_TOPIC are required when FINALIZE_TRANSPORT=kafka")
		}
	default:
		return fmt.Errorf("FINALIZE_TRANSPORT must be %q or %q", FinalizeInline, FinalizeKafka)
	}

	return nil
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
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
