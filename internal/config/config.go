package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CategorySpec is the fixed query specification for one content category.
type CategorySpec struct {
	Name        string
	SourceList  string // scraper provider source-list ID
	MaxItems    int
	WindowHours int
	Language    string
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Key-value store (REST, bearer auth)
	KVStoreURL   string
	KVStoreToken string

	// Scraping provider
	ScraperURL   string
	ScraperToken string

	// Text-generation provider
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Queue database
	PostgresDSN string

	// Newsletter delivery
	SenderEmail  string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// Raw-response archive (optional)
	StorageAccount   string
	StorageContainer string

	// Content categories to collect and analyze
	Categories []CategorySpec

	// Delay between per-post store writes during ingestion
	IngestThrottle time.Duration

	// Background task runner
	TaskWorkers   int
	TaskQueueSize int

	// Stale in-flight requeue horizon
	StaleClaimAge time.Duration

	// Scheduling
	TimeZone string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		KVStoreURL:   getEnv("KV_REST_API_URL", ""),
		KVStoreToken: getEnv("KV_REST_API_TOKEN", ""),

		ScraperURL:   getEnv("SCRAPER_API_URL", ""),
		ScraperToken: getEnv("SCRAPER_API_TOKEN", ""),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),

		PostgresDSN: getEnv("DATABASE_URL", ""),

		SenderEmail:  getEnv("SENDER_EMAIL", ""),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "trend-responses"),

		IngestThrottle: getDurationEnv("INGEST_THROTTLE", 50*time.Millisecond),

		TaskWorkers:   getIntEnv("TASK_WORKERS", 4),
		TaskQueueSize: getIntEnv("TASK_QUEUE_SIZE", 64),

		StaleClaimAge: getDurationEnv("STALE_CLAIM_AGE", 15*time.Minute),

		TimeZone: getEnv("TIMEZONE", "UTC"),
	}

	cfg.Categories = parseCategories(getEnv("CATEGORIES", "tech:0,ai:0"))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.KVStoreURL == "" || c.KVStoreToken == "" {
		return fmt.Errorf("KV_REST_API_URL and KV_REST_API_TOKEN are required")
	}

	if c.ScraperURL == "" || c.ScraperToken == "" {
		return fmt.Errorf("SCRAPER_API_URL and SCRAPER_API_TOKEN are required")
	}

	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}

	if c.PostgresDSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category must be configured (CATEGORIES)")
	}

	if c.SenderEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when SENDER_EMAIL is set")
		}
	}

	return nil
}

// parseCategories parses "name:listID,name:listID" into category specs.
// Per-category overrides come from CATEGORY_<NAME>_* variables.
func parseCategories(raw string) []CategorySpec {
	var specs []CategorySpec

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name := entry
		listID := ""
		if idx := strings.Index(entry, ":"); idx >= 0 {
			name = entry[:idx]
			listID = entry[idx+1:]
		}

		upper := strings.ToUpper(name)
		specs = append(specs, CategorySpec{
			Name:        strings.ToLower(name),
			SourceList:  getEnv("CATEGORY_"+upper+"_LIST", listID),
			MaxItems:    getIntEnv("CATEGORY_"+upper+"_MAX_ITEMS", 100),
			WindowHours: getIntEnv("CATEGORY_"+upper+"_WINDOW_HOURS", 24),
			Language:    getEnv("CATEGORY_"+upper+"_LANGUAGE", "en"),
		})
	}

	return specs
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
