package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DocumentDirectory      string
	CompressionThresholdKB int

	StorageTimeoutSeconds int
	RenderMaxRetries      int
	RenderBackoffSeconds  int

	ContractCacheTTLSeconds int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                addr,
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		LogLevel:                envDefault("LOG_LEVEL", "info"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 envIntDefault("REDIS_DB", 0),
		DocumentDirectory:       envDefault("DOCUMENT_DIRECTORY", "GESTION_ONLINE"),
		CompressionThresholdKB:  envIntDefault("COMPRESSION_THRESHOLD_KB", 100),
		StorageTimeoutSeconds:   envIntDefault("STORAGE_TIMEOUT_SECONDS", 15),
		RenderMaxRetries:        envIntDefault("RENDER_MAX_RETRIES", 3),
		RenderBackoffSeconds:    envIntDefault("RENDER_BACKOFF_SECONDS", 2),
		ContractCacheTTLSeconds: envIntDefault("CONTRACT_CACHE_TTL_SECONDS", 600),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutSeconds) * time.Second
}

func (c Config) RenderBackoff() time.Duration {
	return time.Duration(c.RenderBackoffSeconds) * time.Second
}

func (c Config) ContractCacheTTL() time.Duration {
	return time.Duration(c.ContractCacheTTLSeconds) * time.Second
}

func (c Config) CompressionThreshold() int {
	return c.CompressionThresholdKB * 1024
}
