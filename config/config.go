package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Poll      PollConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	LogFile        string
	LogLevel       string
	ReadTimeout    time.Duration
	AdminToken     string
	AllowedOrigins []string
	Development    bool
}

type StoreConfig struct {
	Backend       string
	FilePath      string
	KeyPrefix     string
	MutateRetries int
}

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	Channel  string // pub/sub channel carrying cross-context changes
}

type DatabaseConfig struct {
	ConnectionString string
	Channel          string // LISTEN/NOTIFY channel
}

type KafkaConfig struct {
	Enabled bool
	Address string
	Topic   string
}

type AuthConfig struct {
	// HashPasswords stores bcrypt hashes for new accounts. Off by default:
	// existing data holds plaintext passwords and login accepts both.
	HashPasswords bool
}

type RateLimitConfig struct {
	Capacity     int64
	RefillRate   int64
	RefillPeriod time.Duration
	// AuthCapacity is the tighter bucket for login and register
	AuthCapacity int64
}

type PollConfig struct {
	AdminInterval  time.Duration
	UnreadInterval time.Duration
	TickTimeout    time.Duration
}

// getProjectRoot finds the project root by looking for go.mod
func getProjectRoot() (string, error) {
	if projectRoot := os.Getenv("PROJECT_ROOT"); projectRoot != "" {
		return projectRoot, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

// resolvePath resolves a path relative to the project root if it's not absolute
func resolvePath(path string) (string, error) {
	if path == "" || path == "-" || path == "stdout" || filepath.IsAbs(path) {
		return path, nil
	}

	projectRoot, err := getProjectRoot()
	if err != nil {
		// Outside a source checkout relative paths stay relative to the cwd
		return path, nil
	}

	return filepath.Join(projectRoot, path), nil
}

func Load() (*Config, error) {
	logFile, err := resolvePath(getEnv("LOG_FILE", "./log/tutorhub.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve log file: %w", err)
	}

	storeFile, err := resolvePath(getEnv("STORE_FILE", "./data/store.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8000),
			LogFile:        logFile,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			AdminToken:     getEnv("ADMIN_TOKEN", ""),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8000"}),
			Development:    getEnv("APP_ENV", "production") == "development",
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			FilePath:      storeFile,
			KeyPrefix:     getEnv("STORE_KEY_PREFIX", "tutorhub:"),
			MutateRetries: getEnvAsInt("STORE_MUTATE_RETRIES", 5),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", "default"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANGES_CHANNEL", "tutorhub:changes"),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			Channel:          getEnv("DATABASE_CHANGES_CHANNEL", "tutorhub_changes"),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Address: getEnv("KAFKA_ADDR", "localhost:9092"),
			Topic:   getEnv("KAFKA_TOPIC", "support-tickets"),
		},
		Auth: AuthConfig{
			HashPasswords: getEnvAsBool("AUTH_HASH_PASSWORDS", false),
		},
		Poll: PollConfig{
			AdminInterval:  getEnvAsDuration("POLL_ADMIN_INTERVAL", 2*time.Second),
			UnreadInterval: getEnvAsDuration("POLL_UNREAD_INTERVAL", 5*time.Second),
			TickTimeout:    getEnvAsDuration("POLL_TICK_TIMEOUT", time.Second),
		},
		RateLimit: RateLimitConfig{
			Capacity:     int64(getEnvAsInt("RATE_LIMIT_CAPACITY", 100)),
			RefillRate:   int64(getEnvAsInt("RATE_LIMIT_REFILL", 10)),
			RefillPeriod: getEnvAsDuration("RATE_LIMIT_PERIOD", time.Second),
			AuthCapacity: int64(getEnvAsInt("RATE_LIMIT_AUTH_CAPACITY", 10)),
		},
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.FilePath == "" {
			errs = append(errs, "store file (STORE_FILE) is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			errs = append(errs, "redis address (REDIS_ADDR) is required for the redis backend")
		}
		if c.Redis.Channel == "" {
			errs = append(errs, "redis changes channel (REDIS_CHANGES_CHANNEL) is required")
		}
	case BackendPostgres:
		if c.Database.ConnectionString == "" {
			errs = append(errs, "database connection string (DATABASE_URL) is required for the postgres backend")
		}
		if c.Database.Channel == "" {
			errs = append(errs, "database changes channel (DATABASE_CHANGES_CHANNEL) is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store backend %q (memory, file, redis, postgres)", c.Store.Backend))
	}

	if c.Store.MutateRetries < 1 {
		errs = append(errs, "store mutate retries must be >= 1")
	}

	if c.Kafka.Enabled {
		if c.Kafka.Address == "" {
			errs = append(errs, "kafka address (KAFKA_ADDR) is required when KAFKA_ENABLED=true")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka topic (KAFKA_TOPIC) is required when KAFKA_ENABLED=true")
		}
	}

	if c.Poll.AdminInterval <= 0 {
		errs = append(errs, "admin poll interval must be > 0")
	}
	if c.Poll.UnreadInterval <= 0 {
		errs = append(errs, "unread poll interval must be > 0")
	}
	if c.Poll.TickTimeout <= 0 {
		errs = append(errs, "poll tick timeout must be > 0")
	}

	if c.RateLimit.Capacity < 1 || c.RateLimit.AuthCapacity < 1 {
		errs = append(errs, "rate limit capacities must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PrintSummary logs a summary of the loaded configuration
func (c *Config) PrintSummary() {
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Server: %s\n", c.ServerAddress())
	fmt.Printf("  Store backend: %s\n", c.Store.Backend)
	switch c.Store.Backend {
	case BackendFile:
		fmt.Printf("  Store file: %s\n", c.Store.FilePath)
	case BackendRedis:
		fmt.Printf("  Redis: %s (DB: %d, channel: %s)\n", c.Redis.Address, c.Redis.DB, c.Redis.Channel)
	case BackendPostgres:
		fmt.Printf("  Database: %s\n", maskConnectionString(c.Database.ConnectionString))
	}
	if c.Kafka.Enabled {
		fmt.Printf("  Kafka: %s (Topic: %s)\n", c.Kafka.Address, c.Kafka.Topic)
	}
	fmt.Printf("  Polling: admin %s, unread %s\n", c.Poll.AdminInterval, c.Poll.UnreadInterval)
	fmt.Printf("  Admin API: %v\n", c.Server.AdminToken != "")
}

// maskConnectionString masks sensitive parts of the connection string
func maskConnectionString(connStr string) string {
	if len(connStr) < 20 {
		return "***"
	}
	return connStr[:20] + "..." + connStr[len(connStr)-10:]
}

// Helper functions to read environment variables with defaults
func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if val, err := time.ParseDuration(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
