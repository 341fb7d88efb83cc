package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// DatabaseURL selects postgres when set; otherwise SQLitePath is used.
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	JWTSecret string

	// Collaborator endpoints. All share CollaboratorTimeout per call.
	RelationshipServiceURL  string
	MediaRoutingServiceURL  string
	PrincipalDirectoryURL   string
	NotificationServiceURL  string
	CollaboratorTimeout     time.Duration

	// Call lifecycle.
	RingWindow         time.Duration
	SessionMaxDuration time.Duration
	RingSweepInterval  time.Duration

	// Messaging.
	RateLimitWindow   time.Duration
	RateLimitMax      int
	MessageListLimit  int
	MaxContentRunes   int

	CORSOrigins []string
	Debug       bool
}

func Load() (*Config, error) {
	// .env is for development only; absent in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "chat-core"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "chat.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RelationshipServiceURL: getEnv("RELATIONSHIP_SERVICE_URL", "http://localhost:8101"),
		MediaRoutingServiceURL: getEnv("MEDIA_ROUTING_SERVICE_URL", "http://localhost:8102"),
		PrincipalDirectoryURL:  getEnv("PRINCIPAL_DIRECTORY_URL", "http://localhost:8103"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8104"),
		CollaboratorTimeout:    time.Duration(getEnvAsInt("COLLABORATOR_TIMEOUT_SECONDS", 10)) * time.Second,

		RingWindow:         time.Duration(getEnvAsInt("RING_WINDOW_SECONDS", 30)) * time.Second,
		SessionMaxDuration: time.Duration(getEnvAsInt("SESSION_MAX_MINUTES", 60)) * time.Minute,
		RingSweepInterval:  time.Duration(getEnvAsInt("RING_SWEEP_INTERVAL_SECONDS", 5)) * time.Second,

		RateLimitWindow:  time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimitMax:     getEnvAsInt("RATE_LIMIT_MAX_MESSAGES", 10),
		MessageListLimit: getEnvAsInt("MESSAGE_LIST_LIMIT", 100),
		MaxContentRunes:  getEnvAsInt("MAX_CONTENT_RUNES", 5000),

		Debug: getEnvAsBool("DEBUG", true),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
