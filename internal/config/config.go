package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Addr         string
	DataDir      string
	CodebookPath string
	SessionTTL   time.Duration
	// Redis Configuration
	RedisURL string
}

func Load() Config {
	return Config{
		Addr:         ":" + getenv("PORT", "5000"),
		DataDir:      getenv("CODEBOOK_DATA_DIR", "./data"),
		CodebookPath: getenv("CODEBOOK_CONFIG", ""),
		SessionTTL:   time.Duration(getenvInt("CODEBOOK_SESSION_TTL_SECONDS", 86400)) * time.Second,
		// Redis - optional, sessions fall back to process memory when unset
		RedisURL: getenv("REDIS_URL", ""),
	}
}

// DatasetPath is the location of the CSV that backs all labeling state.
func (c Config) DatasetPath() string {
	return filepath.Join(c.DataDir, "current.csv")
}

// SettingsPath is the location of the coder display-name settings document.
func (c Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
