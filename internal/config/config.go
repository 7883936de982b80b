package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port           string
	MaxUploadBytes int

	// Database configuration
	DBType               string // mysql, mariadb, postgres, sqlite, sqlite-go, sqlserver
	DBHost               string
	DBPort               string
	DBDatabase           string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int

	// Identity configuration
	AuthMode      string // authorizer or jwt
	AuthzURL      string
	AuthzClientID string
	JWTSecret     string
	JWTIssuer     string

	// Artifact storage
	ArtifactBackend string // fs, s3 or memory
	DatasetRoot     string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string

	// Desensitization and preview
	MaskSecret       string
	PreviewRows      int
	PreviewCacheSize int
	IngestTimeout    time.Duration

	// Notifications
	RedisURL      string
	NotifyChannel string
}

const (
	AuthModeAuthorizer = "authorizer"
	AuthModeJWT        = "jwt"

	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// LoadEnvFile loads ENV_FILE, or .env, into the process environment. A
// missing file is not an error; variables already set are not overridden.
func LoadEnvFile() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		MaxUploadBytes:       getEnvAsInt("MAX_UPLOAD_BYTES", 32<<20),
		DBType:               getEnv("DB_TYPE", "mysql"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "3306"),
		DBDatabase:           getEnv("DB_DATABASE", ""),
		DBAppUser:            getEnv("DB_APP_USER", ""),
		DBAppPassword:        getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit: getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		AuthMode:             getEnv("AUTH_MODE", AuthModeAuthorizer),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		JWTIssuer:            getEnv("JWT_ISSUER", ""),
		ArtifactBackend:      getEnv("ARTIFACT_BACKEND", BackendFS),
		DatasetRoot:          getEnv("DATASET_ROOT", "./datasets"),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
		MaskSecret:           getEnv("MASK_SECRET", ""),
		PreviewRows:          getEnvAsInt("PREVIEW_ROWS", 50),
		PreviewCacheSize:     getEnvAsInt("PREVIEW_CACHE_SIZE", 128),
		IngestTimeout:        getEnvAsDuration("INGEST_TIMEOUT", 30*time.Second),
		RedisURL:             getEnv("REDIS_URL", ""),
		NotifyChannel:        getEnv("NOTIFY_CHANNEL", "datashare.proposals"),
	}

	// Validate required fields
	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.MaskSecret == "" {
		return nil, fmt.Errorf("MASK_SECRET is required")
	}

	switch cfg.AuthMode {
	case AuthModeAuthorizer:
		if cfg.AuthzURL == "" {
			return nil, fmt.Errorf("AUTHZ_URL is required")
		}
		if cfg.AuthzClientID == "" {
			return nil, fmt.Errorf("AUTHZ_CLIENT_ID is required")
		}
	case AuthModeJWT:
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
	default:
		return nil, fmt.Errorf("unsupported AUTH_MODE: %s", cfg.AuthMode)
	}

	switch cfg.ArtifactBackend {
	case BackendFS, BackendMemory:
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required")
		}
	default:
		return nil, fmt.Errorf("unsupported ARTIFACT_BACKEND: %s", cfg.ArtifactBackend)
	}

	if cfg.PreviewRows <= 0 {
		return nil, fmt.Errorf("PREVIEW_ROWS must be positive")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
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

// getEnvAsDuration gets an environment variable as a time.Duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
