package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL        string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	Delay          time.Duration // mandatory pause between successive fetches
	RandomDelay    time.Duration

	PerOrderLimit       int
	SortOrders          []string
	MaxOptionContainers int // cap on class-heuristic containers tried

	OutputFile   string
	OutputFormat string // csv, json, xlsx, or dual
	MetricsAddr  string
	Verbose      bool

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
}

// DefaultConfig returns conservative defaults for the mobile search endpoint.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://search.danawa.com/mobile/dsearch.php",
		UserAgent: "Mozilla/5.0 (Linux; Android 10; Pixel 3) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/120.0.0.0 Mobile Safari/537.36",
		AcceptLanguage:      "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
		Timeout:             20 * time.Second,
		Delay:               600 * time.Millisecond,
		RandomDelay:         200 * time.Millisecond,
		PerOrderLimit:       5,
		SortOrders:          []string{"popularity", "review_count"},
		MaxOptionContainers: 3,
		OutputFile:          "output/results.csv",
		OutputFormat:        "csv",
		MetricsAddr:         "",
		Verbose:             false,
		PipelineBufferSize:  512,
		BatchSize:           64,
		DedupeMaxSize:       4096,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.PerOrderLimit <= 0 {
		return fmt.Errorf("per-order limit must be positive")
	}
	if len(c.SortOrders) == 0 {
		return fmt.Errorf("at least one sort order is required")
	}
	if c.MaxOptionContainers <= 0 {
		return fmt.Errorf("max option containers must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "xlsx", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, xlsx, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration reads a duration environment override (e.g. "600ms", "20s").
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return value, true, nil
}
