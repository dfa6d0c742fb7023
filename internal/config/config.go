package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds shared runtime configuration for the API and worker services.
type Config struct {
	Env           string
	HTTPPort      string
	MetricsAddr   string
	PublicBaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string

	BlobBucket   string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool
	DataDir      string

	UploadSlotTTL  time.Duration
	UploadWaitTime time.Duration

	MaxLabels     int
	MinConfidence int
	MaxImageBytes int64

	CallbackTimeout time.Duration

	VisibilityTimeout  time.Duration
	WorkerPollInterval time.Duration
	CheckBatchSize     int

	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from environment variables with sane defaults for
// local development. With no Postgres DSN and no bucket the services fall
// back to the in-memory store and the directory-backed object store.
func Load() Config {
	return Config{
		Env:           getEnv("APP_ENV", "dev"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),

		BlobBucket:  getEnv("BLOB_BUCKET", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3PathStyle: getEnvBool("S3_PATH_STYLE", false),
		DataDir:     getEnv("DATA_DIR", "./data"),

		UploadSlotTTL:  getEnvDuration("UPLOAD_SLOT_TTL", 30*time.Second),
		UploadWaitTime: getEnvDuration("UPLOAD_WAIT_TIME", 40*time.Second),

		MaxLabels:     getEnvInt("MAX_LABELS", 10),
		MinConfidence: getEnvInt("MIN_CONFIDENCE", 50),
		MaxImageBytes: int64(getEnvInt("MAX_IMAGE_BYTES", 15*1024*1024)),

		CallbackTimeout: getEnvDuration("CALLBACK_TIMEOUT", 10*time.Second),

		VisibilityTimeout:  getEnvDuration("VISIBILITY_TIMEOUT", 30*time.Second),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		CheckBatchSize:     getEnvInt("CHECK_BATCH_SIZE", 100),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 50),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 20),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
