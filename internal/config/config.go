package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port    string
	DBPath  string
	Workers int

	// Browser automation backend.
	BrowserEndpoint string
	BrowserToken    string

	// Scrape tuning.
	MaxPages       int
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
	MaxRetries     int
	PriorityCities []string

	// Export sink.
	ExportEnabled bool
	ExportDir     string
	ExportBaseURL string
}

func Load() Config {
	return Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("DB_PATH", "jobscout.db"),
		Workers:         getEnvInt("WORKERS", 2),
		BrowserEndpoint: getEnv("BROWSER_ENDPOINT", "http://localhost:9222"),
		BrowserToken:    getEnv("BROWSER_TOKEN", ""),
		MaxPages:        getEnvInt("MAX_PAGES", 10),
		PageDelayMin:    time.Duration(getEnvInt("PAGE_DELAY_MIN_MS", 1000)) * time.Millisecond,
		PageDelayMax:    time.Duration(getEnvInt("PAGE_DELAY_MAX_MS", 3000)) * time.Millisecond,
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		PriorityCities:  getEnvList("PRIORITY_CITIES", []string{"Jakarta"}),
		ExportEnabled:   getEnvBool("EXPORT_ENABLED", true),
		ExportDir:       getEnv("EXPORT_DIR", "exports"),
		ExportBaseURL:   getEnv("EXPORT_BASE_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
