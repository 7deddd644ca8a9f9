package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	RedisAddr    string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	Port         string
	JWTSecret    string

	// Embedding provider: "gemini" or "openai".
	EmbedProvider string
	EmbedAPIKey   string
	EmbedModel    string
	EmbedDim      int
	EmbedBatch    int
	EmbedRPS      float64
	EmbedBurst    int

	// Chunking knobs.
	ChunkTargetTokens  int
	ChunkOverlapTokens int
	ChunkHardMaxRunes  int

	// OCR fallback.
	OcrMinTextLen  int
	OcrPollInitial time.Duration
	OcrPollMax     time.Duration
	OcrPollBudget  time.Duration
	OcrQuotaPages  int64
	OcrQuotaWindow string

	// Pipeline retry policy.
	MaxAttempts    int
	RetryBase      time.Duration
	RetryMax       time.Duration
	IngestWorkers  int
	IngestQueueCap int

	// Remote fetch for url-kind items.
	FetchTimeout  time.Duration
	FetchMaxBytes int64
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "arkiva-docs"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		EmbedProvider: getEnv("EMBED_PROVIDER", "gemini"),
		EmbedAPIKey:   getEnv("EMBED_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),
		EmbedBatch:    getEnvInt("EMBED_BATCH", 16),
		EmbedRPS:      getEnvFloat("EMBED_RPS", 5),
		EmbedBurst:    getEnvInt("EMBED_BURST", 10),

		ChunkTargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 400),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 40),
		ChunkHardMaxRunes:  getEnvInt("CHUNK_HARD_MAX_RUNES", 8000),

		OcrMinTextLen:  getEnvInt("OCR_MIN_TEXT_LEN", 64),
		OcrPollInitial: getEnvDuration("OCR_POLL_INITIAL", 2*time.Second),
		OcrPollMax:     getEnvDuration("OCR_POLL_MAX", 30*time.Second),
		OcrPollBudget:  getEnvDuration("OCR_POLL_BUDGET", 10*time.Minute),
		OcrQuotaPages:  int64(getEnvInt("OCR_QUOTA_PAGES", 1000)),
		OcrQuotaWindow: getEnv("OCR_QUOTA_WINDOW", "monthly"),

		MaxAttempts:    getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),
		RetryBase:      getEnvDuration("PIPELINE_RETRY_BASE", 2*time.Second),
		RetryMax:       getEnvDuration("PIPELINE_RETRY_MAX", 30*time.Second),
		IngestWorkers:  getEnvInt("INGEST_WORKERS", 4),
		IngestQueueCap: getEnvInt("INGEST_QUEUE_CAP", 64),

		FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchMaxBytes: int64(getEnvInt("FETCH_MAX_BYTES", 20<<20)),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
