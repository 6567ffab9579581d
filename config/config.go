// Package config loads the service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jimiolaniyan/goaccounts/auth"
)

const productionEnv = "production"

type Config struct {
	Port string
	Env  string

	MongoURI      string
	MongoDatabase string
	RedisURL      string

	SessionSecret string
	SessionTTL    time.Duration
	CookieMaxAge  time.Duration

	BcryptCost  int
	HashWorkers int

	StaticDir string
	LogLevel  string
}

// Load reads the configuration. Variables already set in the environment win
// over the ones in envFile; a missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{
		Port: getEnv("PORT", "3000"),
		Env:  getEnv("APP_ENV", "development"),

		MongoURI:      getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "accounts"),
		RedisURL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", auth.StoreTTL),
		CookieMaxAge:  getEnvAsDuration("COOKIE_MAX_AGE", auth.CookieMaxAge),

		BcryptCost:  getEnvAsInt("BCRYPT_COST", auth.DefaultCost),
		HashWorkers: getEnvAsInt("HASH_WORKERS", 0),

		StaticDir: getEnv("STATIC_DIR", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.IsProduction() && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
	}
	if c.SessionTTL <= 0 || c.CookieMaxAge <= 0 {
		return fmt.Errorf("SESSION_TTL and COOKIE_MAX_AGE must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == productionEnv
}

// SessionLifetime is how long a session stays valid.
func (c *Config) SessionLifetime() time.Duration {
	return auth.EffectiveLifetime(c.SessionTTL, c.CookieMaxAge)
}

func getEnv(key string, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvAsDuration accepts Go durations ("260s") or plain seconds ("260").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.Atoi(v); err == nil {
		return time.Duration(s) * time.Second
	}
	return defaultValue
}
