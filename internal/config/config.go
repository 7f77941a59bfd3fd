package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	UpstreamOrigin string
	CanonicalHosts []string
	AssetPrefixes  []string

	TokenSecret     string
	TokenTTL        time.Duration
	FingerprintSalt string

	MetadataTTL time.Duration
	ScriptTTL   time.Duration
	AssetTTL    time.Duration

	MaxFailedAttempts int
	AttemptWindow     time.Duration

	RateLimit       int
	RateLimitWindow time.Duration

	UpstreamTimeout time.Duration
	CacheTimeout    time.Duration

	RedisURL string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string
}

func Load() *Config {
	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		UpstreamOrigin:    strings.TrimRight(mustGetEnv("UPSTREAM_ORIGIN"), "/"),
		CanonicalHosts:    getEnvList("CANONICAL_HOSTS", "localhost"),
		AssetPrefixes:     getEnvList("ASSET_PREFIXES", "/static/,/assets/,/images/,/fonts/,/media/"),
		TokenSecret:       mustGetEnv("TOKEN_SECRET"),
		TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),
		FingerprintSalt:   mustGetEnv("FINGERPRINT_SALT"),
		MetadataTTL:       getEnvDuration("METADATA_TTL", time.Hour),
		ScriptTTL:         getEnvDuration("SCRIPT_TTL", 24*time.Hour),
		AssetTTL:          getEnvDuration("ASSET_TTL", 24*time.Hour),
		MaxFailedAttempts: getEnvInt("MAX_FAILED_ATTEMPTS", 5),
		AttemptWindow:     getEnvDuration("ATTEMPT_WINDOW", 15*time.Minute),
		RateLimit:         getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		UpstreamTimeout:   getEnvDuration("UPSTREAM_TIMEOUT", 12*time.Second),
		CacheTimeout:      getEnvDuration("CACHE_TIMEOUT", 500*time.Millisecond),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		S3Bucket:          getEnv("S3_BUCKET", "asset-cache"),
		S3Region:          getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKey:       mustGetEnv("AWS_ACCESS_KEY_ID"),
		S3SecretKey:       mustGetEnv("AWS_SECRET_ACCESS_KEY"),
		PostgresUser:      getEnv("POSTGRES_USER", "pagegate"),
		PostgresPassword:  getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:      getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:      getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase:  getEnv("POSTGRES_DATABASE", "pagegate"),
		PostgresSSLMode:   getEnv("POSTGRES_SSL_MODE", "disable"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("Missing required environment variable: " + key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
