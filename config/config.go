package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Firebase FirebaseConfig
	Export   ExportConfig
	App      AppConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	DSN      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type FirebaseConfig struct {
	// Empty CredentialsPath disables token verification and the API
	// falls back to header-based dev identity.
	CredentialsPath string
}

type ExportConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type AppConfig struct {
	Environment   string
	Version       string
	ResultMaxAge  int // seconds a cached query result stays fresh
	ResultTTLDays int // days before an unlinked query result is purged
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DB_DSN", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Export: ExportConfig{
			Bucket:          getEnv("EXPORT_S3_BUCKET", ""),
			Region:          getEnv("EXPORT_S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("EXPORT_AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("EXPORT_AWS_SECRET_ACCESS_KEY", ""),
		},
		App: AppConfig{
			Environment:   getEnv("APP_ENV", "development"),
			Version:       getEnv("APP_VERSION", "1.0.0"),
			ResultMaxAge:  getEnvAsInt("RESULT_MAX_AGE", 60),
			ResultTTLDays: getEnvAsInt("RESULT_TTL_DAYS", 7),
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

	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
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
