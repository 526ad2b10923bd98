package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Transform TransformConfig
	Catalog   CatalogConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
	Session   SessionConfig
}

type APIConfig struct {
	Addr string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	TaskTimeout   time.Duration
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveJobs int
	Provider      string
	MetricsAddr   string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// Enabled reports whether object storage has been configured at all.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

type DatabaseConfig struct {
	DSN string
}

type TransformConfig struct {
	Provider     string
	Delay        time.Duration
	Timeout      time.Duration
	GeminiAPIKey string
	GeminiModel  string
	PollInterval time.Duration
}

type CatalogConfig struct {
	Path string
}

type RateLimitConfig struct {
	Enabled  bool
	Capacity int
	Window   time.Duration
}

type WebhookConfig struct {
	URL    string
	Secret string
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	ServiceName  string
}

type SessionConfig struct {
	IdleTTL time.Duration
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr: env("STYLEFLOW_API_ADDR", ":8080"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "styles"),
			TaskTimeout:   envDuration("QUEUE_TASK_TIMEOUT", 3*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs: envInt("WORKER_MAX_ACTIVE_JOBS", defaultWorkerSlots),
			Provider:      env("WORKER_TRANSFORM_PROVIDER", "filter"),
			MetricsAddr:   env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:      env("MINIO_ENDPOINT", ""),
			AccessKey:     env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:     env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:        env("MINIO_BUCKET", "styleflow"),
			UseSSL:        envBool("MINIO_USE_SSL", false),
			PresignExpiry: envDuration("MINIO_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Transform: TransformConfig{
			Provider:     env("TRANSFORM_PROVIDER", "delay"),
			Delay:        envDuration("TRANSFORM_DELAY", 3000*time.Millisecond),
			Timeout:      envDuration("TRANSFORM_TIMEOUT", 0),
			GeminiAPIKey: env("GEMINI_API_KEY", ""),
			GeminiModel:  env("GEMINI_MODEL", ""),
			PollInterval: envDuration("TRANSFORM_POLL_INTERVAL", 250*time.Millisecond),
		},
		Catalog: CatalogConfig{
			Path: env("STYLE_CATALOG_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:  envBool("RATE_LIMIT_ENABLED", false),
			Capacity: envInt("RATE_LIMIT_CAPACITY", 30),
			Window:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Webhook: WebhookConfig{
			URL:    env("WEBHOOK_URL", ""),
			Secret: env("WEBHOOK_SECRET", ""),
		},
		Tracing: TracingConfig{
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName:  env("OTEL_SERVICE_NAME", "styleflow"),
		},
		Session: SessionConfig{
			IdleTTL: envDuration("SESSION_IDLE_TTL", 30*time.Minute),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// envDuration accepts Go duration strings ("750ms", "2m") or a bare number
// of milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
