package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum goroutines for concurrent tests
}

// getReliabilityConfig reads configuration from environment variables
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         os.Getenv("HELLOTRACE_RELIABILITY_LEVEL"),
		Duration:      parseDuration(os.Getenv("HELLOTRACE_RELIABILITY_DURATION"), 5*time.Second),
		MaxGoroutines: parseInt(os.Getenv("HELLOTRACE_RELIABILITY_MAX_GOROUTINES"), 100),
	}
}

func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}
