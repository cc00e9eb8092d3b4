package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Matrix     MatrixConfig
	Appservice AppserviceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/convene?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// MatrixConfig holds the connection to the external chat network and the
// identity of the automation bot that administers rooms on our behalf.
type MatrixConfig struct {
	HomeserverURL     string // client-server API base, e.g. https://chat.convene.example
	ServerDomain      string // domain part of every alias and user ID we own
	BotUserID         string // fully-qualified bot user, e.g. @convene-bot:chat.convene.example
	AccessToken       string
	RequestTimeoutSec int
	AdminPowerLevel   int // level the bot is elevated to when it lacks privileges
	ModeratorLevel    int // threshold for "can modify power levels"
}

// AppserviceConfig holds credentials for inbound federation callbacks.
type AppserviceConfig struct {
	// HomeserverToken is the bearer token the homeserver presents when it
	// calls back into the room-query / user-query endpoints.
	HomeserverToken string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/convene?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "convene"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Matrix: MatrixConfig{
			HomeserverURL:     getEnv("MATRIX_HOMESERVER_URL", "http://localhost:8008"),
			ServerDomain:      getEnv("MATRIX_SERVER_DOMAIN", "chat.convene.local"),
			BotUserID:         getEnv("MATRIX_BOT_USER_ID", "@convene-bot:chat.convene.local"),
			AccessToken:       getEnv("MATRIX_ACCESS_TOKEN", ""),
			RequestTimeoutSec: getEnvInt("MATRIX_REQUEST_TIMEOUT_SEC", 15),
			AdminPowerLevel:   getEnvInt("MATRIX_ADMIN_POWER_LEVEL", 100),
			ModeratorLevel:    getEnvInt("MATRIX_MODERATOR_LEVEL", 50),
		},
		Appservice: AppserviceConfig{
			HomeserverToken: getEnv("APPSERVICE_HS_TOKEN", ""),
		},
	}

	if strings.TrimSpace(cfg.Matrix.ServerDomain) == "" {
		return nil, fmt.Errorf("MATRIX_SERVER_DOMAIN must not be empty")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
