package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Process names the running binary (api, worker, enrichctl). Not read from env.
	Process         string
	Port            string
	Env             string
	DatabaseURL     string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	SQSQueueURL     string

	CatalogBaseURL        string
	CatalogAPIKey         string
	CatalogCollection     string
	CatalogSearchFunction string
	CatalogRPS            float64
	CatalogCacheSize      int
	CatalogHealthPath     string

	ImageCacheType string
	// ImageCacheDir is the badger root; each process opens its own subdirectory.
	ImageCacheDir  string
	ImageCacheTTL  time.Duration
	RedisURL       string

	EnrichConcurrency int
	EnrichInterval    time.Duration
	ProbeInterval     time.Duration
	FetchTimeout      time.Duration
	HashSuffix        bool

	TriggerRateLimit float64
	TriggerBurst     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		DatabaseURL:     dbURL,
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		SQSQueueURL:     strings.TrimSpace(getEnv("TL_SQS_QUEUE_URL", "")),

		CatalogBaseURL:        strings.TrimRight(getEnv("CATALOG_BASE_URL", "http://localhost:8085"), "/"),
		CatalogAPIKey:         getEnv("CATALOG_API_KEY", ""),
		CatalogCollection:     getEnv("CATALOG_COLLECTION", "cities"),
		CatalogSearchFunction: getEnv("CATALOG_SEARCH_FUNCTION", "searchCities"),
		CatalogRPS:            getEnvFloat("CATALOG_RPS", 10),
		CatalogCacheSize:      getEnvInt("CATALOG_CACHE_SIZE", 2048),
		CatalogHealthPath:     getEnv("CATALOG_HEALTH_PATH", "/healthz"),

		ImageCacheType: normalizeCacheType(getEnv("IMAGE_CACHE", "badger")),
		ImageCacheDir:  getEnv("IMAGE_CACHE_DIR", "./data/imagecache"),
		ImageCacheTTL:  getEnvDuration("IMAGE_CACHE_TTL", 7*24*time.Hour),
		RedisURL:       getEnv("REDIS_URL", ""),

		EnrichConcurrency: getEnvInt("ENRICH_CONCURRENCY", 1),
		EnrichInterval:    getEnvDuration("ENRICH_INTERVAL", 15*time.Minute),
		ProbeInterval:     getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 10*time.Second),
		FetchTimeout:      getEnvDuration("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		HashSuffix:        getEnvBool("IMAGE_FILENAME_HASH", true),

		TriggerRateLimit: getEnvFloat("TRIGGER_RATE_LIMIT", 1),
		TriggerBurst:     getEnvInt("TRIGGER_RATE_BURST", 5),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config env %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config env %s invalid bool: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config env %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
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

func normalizeCacheType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "redis":
		return "redis"
	case "none", "off", "disabled":
		return "none"
	default:
		return "badger"
	}
}
