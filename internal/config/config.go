// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the service
type Config struct {
	Host string
	Port string

	// UploadDir is where finished MP3 artifacts are written
	UploadDir    string
	DatabasePath string

	DefaultQuality string

	// Retention controls for the cleanup sweeper
	RetentionDays int
	SweepInterval time.Duration

	// Rate limiting for download submissions
	RateLimitPerMinute int
	RateLimitWindow    time.Duration

	// External pipeline settings
	YtdlpPath       string
	MetadataTimeout time.Duration
	PipelineTimeout time.Duration

	// Optional artifact archive (disabled when Endpoint is empty)
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string

	LogLevel string
}

// Load reads configuration from environment variables, applying defaults
func Load() *Config {
	return &Config{
		Host:               envOr("HOST", "0.0.0.0"),
		Port:               envOr("PORT", "8080"),
		UploadDir:          envOr("UPLOAD_DIR", "uploads"),
		DatabasePath:       envOr("DATABASE_PATH", "data/audiofetch.db"),
		DefaultQuality:     envOr("DEFAULT_QUALITY", "192"),
		RetentionDays:      envInt("FILE_CLEANUP_DAYS", 7),
		SweepInterval:      envDuration("FILE_CLEANUP_INTERVAL", 24*time.Hour),
		RateLimitPerMinute: envInt("RATELIMIT_PER_MINUTE", 5),
		RateLimitWindow:    envDuration("RATELIMIT_WINDOW", time.Minute),
		YtdlpPath:          envOr("YTDLP_PATH", "yt-dlp"),
		MetadataTimeout:    envDuration("METADATA_TIMEOUT", 30*time.Second),
		PipelineTimeout:    envDuration("PIPELINE_TIMEOUT", 5*time.Minute),
		ArchiveEndpoint:    os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveAccessKey:   os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey:   os.Getenv("ARCHIVE_SECRET_KEY"),
		ArchiveBucket:      envOr("ARCHIVE_BUCKET", "audiofetch"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
	}
}

// Retention returns the artifact retention window as a duration
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
