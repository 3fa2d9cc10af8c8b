package integration

import (
	"os"
	"strconv"
	"time"
)

// StressConfig holds configuration for the heavier integration runs.
type StressConfig struct {
	Traces       int           // Traces driven concurrently
	SpansPerTree int           // Spans per trace tree
	Duration     time.Duration // Soak duration for the churn test
}

// getStressConfig reads configuration from environment variables.
func getStressConfig() StressConfig {
	return StressConfig{
		Traces:       parseInt(getEnv("LOOM_STRESS_TRACES", "200")),
		SpansPerTree: parseInt(getEnv("LOOM_STRESS_SPANS_PER_TREE", "10")),
		Duration:     parseDuration(getEnv("LOOM_STRESS_DURATION", "5s")),
	}
}

// isStressEnabled checks if the stress tier is enabled.
func isStressEnabled() bool {
	return os.Getenv("LOOM_STRESS_LEVEL") == "stress"
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses integer from string with default fallback.
func parseInt(s string) int {
	if value, err := strconv.Atoi(s); err == nil {
		return value
	}
	return 0
}

// parseDuration parses duration from string with default fallback.
func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil {
		return duration
	}
	return 5 * time.Second
}
