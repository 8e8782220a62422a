package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Events   EventsConfig
	Session  SessionConfig
	Draft    DraftConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	StreamLogFilePath  string
	CorsAllowedOrigins string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelSampleRatio    float64
}

type DatabaseConfig struct {
	Connection string
}

type StorageConfig struct {
	Driver   string // "memory", "redis" or "postgres"
	RedisURL string
	// Prefix keeps keys of several deployments apart on a shared Redis.
	RedisPrefix string
}

type EventsConfig struct {
	Driver  string // "channel" or "nats"
	NatsURL string
	Topic   string
}

type SessionConfig struct {
	TTL time.Duration
}

type DraftConfig struct {
	AutoSaveEnabled      bool
	AutoSaveEveryChanges int
	AutoSaveInterval     time.Duration
	TranscriptLimit      int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			StreamLogFilePath:  getEnv("STREAM_LOG_FILE_PATH", "logs/stream.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			OtelSampleRatio:    getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Storage: StorageConfig{
			Driver:      getEnv("STORAGE_DRIVER", "memory"),
			RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
			RedisPrefix: getEnv("REDIS_KEY_PREFIX", "grant-assistant:"),
		},
		Events: EventsConfig{
			Driver:  getEnv("EVENTS_DRIVER", "channel"),
			NatsURL: getEnv("NATS_URL", "nats://localhost:4222"),
			Topic:   getEnv("EVENTS_TOPIC", "proposal_events"),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Draft: DraftConfig{
			AutoSaveEnabled:      getEnvAsBool("AUTOSAVE_ENABLED", true),
			AutoSaveEveryChanges: getEnvAsInt("AUTOSAVE_EVERY_CHANGES", 3),
			AutoSaveInterval:     getEnvAsDuration("AUTOSAVE_INTERVAL", 30*time.Second),
			TranscriptLimit:      getEnvAsInt("TRANSCRIPT_LIMIT", 500),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
