package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Application configuration
	App struct {
		Env     string
		Version string
		UserID  string
	}

	// Completion provider configuration
	Provider struct {
		APIKey         string
		BaseURL        string
		Model          string
		Temperature    float64
		MaxTokens      int
		Timeout        time.Duration
		RateLimit      float64
		RateLimitBurst int
	}

	// Persistence slot configuration
	Persistence struct {
		Backend       string // "file" or "redis"
		FilePath      string
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		RedisKey      string
	}

	// Chat behavior configuration
	Chat struct {
		TypingDelayScale float64
		HistoryWindow    int
	}

	// Vault credential store configuration
	Vault struct {
		Enabled    bool
		Address    string
		Token      string
		Namespace  string
		Mount      string
		KeyPath    string
		Timeout    time.Duration
		MaxRetries int
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Telemetry configuration
	Telemetry struct {
		Enabled     bool
		MetricsPort string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Application config
		instance.App.Env = getEnvString("APP_ENV", "development")
		instance.App.Version = getEnvString("APP_VERSION", "dev")
		instance.App.UserID = getEnvString("CHAT_USER_ID", "local")

		// Provider config
		instance.Provider.APIKey = getEnvString("PROVIDER_API_KEY", "")
		instance.Provider.BaseURL = getEnvString("PROVIDER_BASE_URL", "https://api.openai.com/v1")
		instance.Provider.Model = getEnvString("PROVIDER_MODEL", "gpt-4o")
		instance.Provider.Temperature = getEnvFloat("PROVIDER_TEMPERATURE", 0.8)
		instance.Provider.MaxTokens = getEnvInt("PROVIDER_MAX_TOKENS", 256)
		instance.Provider.Timeout = getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second)
		instance.Provider.RateLimit = getEnvFloat("PROVIDER_RATE_LIMIT", 2)
		instance.Provider.RateLimitBurst = getEnvInt("PROVIDER_RATE_LIMIT_BURST", 4)

		// Persistence config
		instance.Persistence.Backend = getEnvString("PERSISTENCE_BACKEND", "file")
		instance.Persistence.FilePath = getEnvString("PERSISTENCE_FILE_PATH", "data/store.json")
		instance.Persistence.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
		instance.Persistence.RedisPassword = getEnvString("REDIS_PASSWORD", "")
		instance.Persistence.RedisDB = getEnvInt("REDIS_DB", 0)
		instance.Persistence.RedisKey = getEnvString("REDIS_STATE_KEY", "roleplay-chat:store")

		// Chat config
		instance.Chat.TypingDelayScale = getEnvFloat("TYPING_DELAY_SCALE", 1.0)
		instance.Chat.HistoryWindow = getEnvInt("CHAT_HISTORY_WINDOW", 20)

		// Vault config
		instance.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
		instance.Vault.Address = getEnvString("VAULT_ADDR", "")
		instance.Vault.Token = getEnvString("VAULT_TOKEN", "")
		instance.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
		instance.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
		instance.Vault.KeyPath = getEnvString("VAULT_KEY_PATH", "roleplay-chat/provider-keys")
		instance.Vault.Timeout = getEnvDuration("VAULT_TIMEOUT", 10*time.Second)
		instance.Vault.MaxRetries = getEnvInt("VAULT_MAX_RETRIES", 3)

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Telemetry config
		instance.Telemetry.Enabled = getEnvBool("TELEMETRY_ENABLED", false)
		instance.Telemetry.MetricsPort = getEnvString("METRICS_PORT", "2112")
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
