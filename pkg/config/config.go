package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds everything the process reads from its environment. It is
// built once at startup and passed down explicitly; nothing else in the
// codebase touches os.Getenv.
type Config struct {
	Port     int
	DBDriver string // "mysql" or "sqlite"
	DBDSN    string

	// SessionSecret keys the cookie session store. Required.
	SessionSecret string

	// RedisAddr enables the login rate limiter when set.
	RedisAddr string

	LogLevel string
}

// Load reads the configuration from the environment, after loading a .env
// file if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnvInt("PORT", 3000),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBDSN:         getEnv("DB_DSN", "microblog.db"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET must be set")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
