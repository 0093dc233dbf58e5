package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// SecretName, when set, points at an AWS Secrets Manager secret whose
	// JSON body carries username/password; it overrides User/Password.
	SecretName string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads database configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            5432,
		User:            getEnv("DB_USER", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnv("DB_NAME", "clip_metadata"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		SecretName:      os.Getenv("DB_SECRET_NAME"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_PORT=%q: %w", portStr, err)
		}
		cfg.Port = port
	}

	return cfg, nil
}

// DSN builds the pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
