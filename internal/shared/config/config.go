package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionStoreMemory   = "memory"
	SessionStoreSQLite   = "sqlite"
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config holds application configuration.
type Config struct {
	Port            string   `env:"PORT" envDefault:"8080"`
	Env             string   `env:"ENV" envDefault:"dev"`
	CORSAllowOrigin []string `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`

	TailorAPIURL     string        `env:"TAILOR_API_URL" envDefault:"http://localhost:5000/api"`
	TailorAPIToken   string        `env:"TAILOR_API_TOKEN"`
	TailorAPITimeout time.Duration `env:"TAILOR_API_TIMEOUT" envDefault:"30s"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`

	SessionStore     string `env:"SESSION_STORE" envDefault:"sqlite"`
	SessionNamespace string `env:"SESSION_NAMESPACE" envDefault:"default"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"./data/session.db"`
	DatabaseURL      string `env:"DATABASE_URL"`
	Redis            RedisConfig `envPrefix:"REDIS_"`

	ObjectStoreType string `env:"OBJECT_STORE" envDefault:"local"`
	LocalStoreDir   string `env:"LOCAL_STORE_DIR" envDefault:"./data/artifacts"`
	AWSRegion       string `env:"AWS_REGION"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Prefix        string `env:"S3_PREFIX"`
	SSEKMSKeyID     string `env:"SSE_KMS_KEY_ID"`
}

// RedisConfig holds connection settings for the redis session store.
type RedisConfig struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"SESSION_TTL" envDefault:"168h"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sanitize normalizes values loaded from env.
func (c *Config) Sanitize() {
	c.Env = normalizeEnv(c.Env)
	c.SessionStore = normalizeSessionStore(c.SessionStore)
	c.ObjectStoreType = normalizeStoreType(c.ObjectStoreType)
	c.CORSAllowOrigin = trimAll(c.CORSAllowOrigin)
	c.TailorAPIURL = strings.TrimRight(strings.TrimSpace(c.TailorAPIURL), "/")
	c.SessionNamespace = strings.TrimSpace(c.SessionNamespace)
	if c.SessionNamespace == "" {
		c.SessionNamespace = "default"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.TailorAPITimeout <= 0 {
		c.TailorAPITimeout = 30 * time.Second
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.TailorAPIURL == "" {
		return fmt.Errorf("TAILOR_API_URL is required")
	}
	if c.SessionStore == SessionStorePostgres && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres session store")
	}
	if c.ObjectStoreType == "s3" && strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("S3_BUCKET is required for the s3 object store")
	}
	if c.Env == "production" && c.TailorAPIToken == "" {
		log.Printf("TAILOR_API_TOKEN is empty in production")
	}
	return nil
}

func loadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Printf("env file %s: %v", p, err)
		}
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, p := range in {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeSessionStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "memory", "mem":
		return SessionStoreMemory
	case "postgres", "pg", "postgresql":
		return SessionStorePostgres
	case "redis":
		return SessionStoreRedis
	default:
		return SessionStoreSQLite
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
