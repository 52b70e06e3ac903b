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
	Server    ServerConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	Agent     AgentConfig
	Logger    LoggerConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

// StoreConfig selects and configures the Queue Store backend (C2). Backend
// "memory" uses the in-process store. The composite backend requires both
// Postgres and Redis hosts to be set (validate rejects empty ones) and
// degrades to the in-process fallback store when it is unreachable.
type StoreConfig struct {
	Backend string // "composite" (postgres+redis) or "memory"

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDatabase int
	RedisPoolSize int
}

// SchedulerConfig carries the default QueueSettings applied when a queue is
// created without an explicit settings override, plus the retry-delay cap
// left open by the spec's design notes.
type SchedulerConfig struct {
	DefaultMaxConcurrency int
	DefaultRetryCount     int
	DefaultRetryDelay     time.Duration
	DefaultTimeoutPerTask time.Duration
	MaxRetryDelay         time.Duration
	RetryBackoffFactor    float64
	ShutdownTimeout       time.Duration
}

// AgentConfig resolves an agentId to an HTTP endpoint and carries frame-read
// and dial timeouts. The timeouts are loaded and validated but are not passed
// to the Agent Invoker, which applies its own fixed frame read deadline.
type AgentConfig struct {
	Endpoints        map[string]string
	FrameReadTimeout time.Duration
	DialTimeout      time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "localhost"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Store: StoreConfig{
			Backend:          getEnv("STORE_BACKEND", "composite"),
			PostgresHost:     getEnv("DB_HOST", "localhost"),
			PostgresPort:     getEnv("DB_PORT", "5432"),
			PostgresUser:     getEnv("DB_USER", "postgres"),
			PostgresPassword: getEnv("DB_PASSWORD", ""),
			PostgresDatabase: getEnv("DB_NAME", "taskqueue"),
			PostgresSSLMode:  getEnv("DB_SSL_MODE", "disable"),
			RedisHost:        getEnv("REDIS_HOST", "localhost"),
			RedisPort:        getEnv("REDIS_PORT", "6379"),
			RedisPassword:    getEnv("REDIS_PASSWORD", ""),
			RedisDatabase:    getEnvInt("REDIS_DATABASE", 0),
			RedisPoolSize:    getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Scheduler: SchedulerConfig{
			DefaultMaxConcurrency: getEnvInt("SCHEDULER_DEFAULT_MAX_CONCURRENCY", DefaultMaxConcurrency),
			DefaultRetryCount:     getEnvInt("SCHEDULER_DEFAULT_RETRY_COUNT", DefaultRetryCount),
			DefaultRetryDelay:     getEnvDuration("SCHEDULER_DEFAULT_RETRY_DELAY", DefaultRetryDelay),
			DefaultTimeoutPerTask: getEnvDuration("SCHEDULER_DEFAULT_TIMEOUT_PER_TASK", DefaultTimeoutPerTask),
			MaxRetryDelay:         getEnvDuration("SCHEDULER_MAX_RETRY_DELAY", DefaultMaxRetryDelay),
			RetryBackoffFactor:    getEnvFloat64("SCHEDULER_RETRY_BACKOFF_FACTOR", RetryBackoffFactor),
			ShutdownTimeout:       getEnvDuration("SCHEDULER_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		},
		Agent: AgentConfig{
			Endpoints:        getEnvMap("AGENT_ENDPOINTS", map[string]string{}),
			FrameReadTimeout: getEnvDuration("AGENT_FRAME_READ_TIMEOUT", DefaultFrameReadDeadline),
			DialTimeout:      getEnvDuration("AGENT_DIAL_TIMEOUT", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	switch c.Store.Backend {
	case "composite", "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Store.Backend == "composite" {
		if c.Store.PostgresHost == "" {
			return fmt.Errorf("postgres host is required for composite store")
		}
		if c.Store.PostgresDatabase == "" {
			return fmt.Errorf("postgres database is required for composite store")
		}
		if c.Store.RedisHost == "" {
			return fmt.Errorf("redis host is required for composite store")
		}
		if c.Store.RedisPoolSize <= 0 {
			return fmt.Errorf("redis pool size must be positive")
		}
	}

	if c.Scheduler.DefaultMaxConcurrency <= 0 {
		return fmt.Errorf("scheduler default max concurrency must be positive")
	}
	if c.Scheduler.DefaultRetryCount < 0 {
		return fmt.Errorf("scheduler default retry count must be non-negative")
	}
	if c.Scheduler.DefaultRetryDelay <= 0 {
		return fmt.Errorf("scheduler default retry delay must be positive")
	}
	if c.Scheduler.DefaultTimeoutPerTask <= 0 {
		return fmt.Errorf("scheduler default timeout per task must be positive")
	}
	if c.Scheduler.RetryBackoffFactor <= 1.0 {
		return fmt.Errorf("scheduler retry backoff factor must be greater than 1.0")
	}
	if c.Scheduler.ShutdownTimeout <= 0 {
		return fmt.Errorf("scheduler shutdown timeout must be positive")
	}

	if c.Agent.FrameReadTimeout <= 0 {
		return fmt.Errorf("agent frame read timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Server.Env) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Server.Env) == "development"
}

func (c *Config) IsTest() bool {
	return strings.ToLower(c.Server.Env) == "test"
}

func (c *Config) DefaultSettings() QueueSettingsDefaults {
	return QueueSettingsDefaults{
		MaxConcurrency: c.Scheduler.DefaultMaxConcurrency,
		RetryCount:     c.Scheduler.DefaultRetryCount,
		RetryDelay:     c.Scheduler.DefaultRetryDelay,
		TimeoutPerTask: c.Scheduler.DefaultTimeoutPerTask,
	}
}

// QueueSettingsDefaults mirrors models.QueueSettings without importing the
// models package, keeping config dependency-free of domain types.
type QueueSettingsDefaults struct {
	MaxConcurrency int
	RetryCount     int
	RetryDelay     time.Duration
	TimeoutPerTask time.Duration
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		result := strings.Split(value, ",")
		for i, v := range result {
			result[i] = strings.TrimSpace(v)
		}
		return result
	}
	return defaultValue
}

// getEnvMap parses "agentA=http://host1,agentB=http://host2" into a map.
func getEnvMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		result[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
	}
	return defaultValue
}
