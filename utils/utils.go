package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GetEnv returns the value of key, or fallback when it is unset or blank.
func GetEnv(key string, fallback ...string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

// GetEnvFloat parses key as a float, returning fallback when unset or invalid.
func GetEnvFloat(key string, fallback float64) float64 {
	raw := GetEnv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvBool reports whether key is set to a truthy value.
func GetEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(GetEnv(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// CreateFolder creates folderPath and any missing parents.
func CreateFolder(folderPath string) error {
	return os.MkdirAll(folderPath, 0o755)
}

// GenerateRunID returns a new random run identifier.
func GenerateRunID() string {
	return uuid.NewString()
}
