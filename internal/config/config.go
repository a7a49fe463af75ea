package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the generation orchestrator.
type Config struct {
	HTTPPort  string
	JWTSecret []byte
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	RateLimit RateLimitConfig
	Quota     QuotaConfig
	Dispatch  DispatchConfig
	Cache     CacheConfig
	Recorder  RecorderConfig
	OpsLog    OpsLogConfig
	SyncWait  time.Duration

	// ServiceAccounts lists backend credentials allowed to exchange an API
	// key for a trusted service token.
	ServiceAccounts []ServiceAccountConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProvidersConfig holds upstream provider settings
type ProvidersConfig struct {
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// RateLimitConfig holds per-operation sliding window limits
type RateLimitConfig struct {
	SummarizeRequests int
	QuestionsRequests int
	AnswersRequests   int
	Window            time.Duration
}

// QuotaConfig holds the monthly token allowance
type QuotaConfig struct {
	MonthlyTokenAllowance int64
}

// DispatchConfig sizes the job queue and worker pool
type DispatchConfig struct {
	QueueSize    int
	Workers      int
	CompletedTTL time.Duration
}

// CacheConfig holds result and document cache settings
type CacheConfig struct {
	ResultTTL         time.Duration
	DocumentCacheSize int
	DocumentCacheTTL  time.Duration
}

// RecorderConfig holds usage/audit pipeline settings
type RecorderConfig struct {
	UseRedisQueue bool
	BatchSize     int
	BatchTimeout  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// ServiceAccountConfig is one trusted backend credential.
type ServiceAccountConfig struct {
	ID  string
	Key string
}

// OpsLogConfig holds configuration for the S3-based ops log sink
type OpsLogConfig struct {
	Enabled       bool
	BufferSize    int
	FlushSize     int
	FlushInterval time.Duration
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	PodName       string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return strings.EqualFold(val, "true") || val == "1"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if geminiKey == "" && openaiKey == "" {
		return nil, fmt.Errorf("at least one of GEMINI_API_KEY or OPENAI_API_KEY is required")
	}

	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", "8080"),
		JWTSecret: []byte(jwtSecret),
		SyncWait:  getEnvDuration("SYNC_WAIT", 25*time.Second),
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Database:        getEnvString("DB_NAME", "acadgen"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Providers: ProvidersConfig{
			GeminiAPIKey: geminiKey,
			GeminiModel:  getEnvString("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIAPIKey: openaiKey,
			OpenAIModel:  getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			MaxAttempts:  getEnvInt("PROVIDER_MAX_ATTEMPTS", 3),
			BaseDelay:    getEnvDuration("PROVIDER_BASE_DELAY", 1*time.Second),
			MaxDelay:     getEnvDuration("PROVIDER_MAX_DELAY", 30*time.Second),
			CallTimeout:  getEnvDuration("PROVIDER_CALL_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			SummarizeRequests: getEnvInt("RATE_LIMIT_SUMMARIZE", 10),
			QuestionsRequests: getEnvInt("RATE_LIMIT_QUESTIONS", 10),
			AnswersRequests:   getEnvInt("RATE_LIMIT_ANSWERS", 30),
			Window:            getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Hour),
		},
		Quota: QuotaConfig{
			MonthlyTokenAllowance: getEnvInt64("QUOTA_MONTHLY_TOKENS", 0),
		},
		Dispatch: DispatchConfig{
			QueueSize:    getEnvInt("DISPATCH_QUEUE_SIZE", 64),
			Workers:      getEnvInt("DISPATCH_WORKERS", 4),
			CompletedTTL: getEnvDuration("DISPATCH_COMPLETED_TTL", 10*time.Minute),
		},
		Cache: CacheConfig{
			ResultTTL:         getEnvDuration("CACHE_RESULT_TTL", 24*time.Hour),
			DocumentCacheSize: getEnvInt("CACHE_DOCUMENT_SIZE", 500),
			DocumentCacheTTL:  getEnvDuration("CACHE_DOCUMENT_TTL", 5*time.Minute),
		},
		Recorder: RecorderConfig{
			UseRedisQueue: getEnvBool("RECORDER_USE_REDIS_QUEUE", false),
			BatchSize:     getEnvInt("RECORDER_BATCH_SIZE", 100),
			BatchTimeout:  getEnvDuration("RECORDER_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:    getEnvInt("RECORDER_MAX_RETRIES", 3),
			RetryBackoff:  getEnvDuration("RECORDER_RETRY_BACKOFF", 1*time.Second),
		},
		OpsLog: OpsLogConfig{
			Enabled:       getEnvBool("OPS_LOG_ENABLED", false),
			BufferSize:    getEnvInt("OPS_LOG_BUFFER_SIZE", 10000),
			FlushSize:     getEnvInt("OPS_LOG_FLUSH_SIZE", 500),
			FlushInterval: getEnvDuration("OPS_LOG_FLUSH_INTERVAL", 30*time.Second),
			S3Bucket:      getEnvString("OPS_LOG_S3_BUCKET", ""),
			S3Region:      getEnvString("OPS_LOG_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("OPS_LOG_S3_PREFIX", "logs/"),
			PodName:       getEnvString("POD_NAME", "orchestrator-0"),
		},
	}

	accounts, err := parseServiceAccounts(os.Getenv("SERVICE_API_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.ServiceAccounts = accounts

	return cfg, nil
}

// parseServiceAccounts parses "id=key" pairs separated by commas, e.g.
// "portal-backend=s3cret,importer=0th3r".
func parseServiceAccounts(raw string) ([]ServiceAccountConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var accounts []ServiceAccountConfig
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, key, ok := strings.Cut(pair, "=")
		if !ok || id == "" || key == "" {
			return nil, fmt.Errorf("SERVICE_API_KEYS: malformed entry %q, expected id=key", pair)
		}
		accounts = append(accounts, ServiceAccountConfig{ID: id, Key: key})
	}
	return accounts, nil
}
