package main

import (
	"os"
	"strings"
)

// Environment variables consulted for flag defaults.
const (
	envConfigPath = "MSGXFORM_CONFIG_PATH"
	envLogLevel   = "MSGXFORM_LOG_LEVEL"
	envLogFormat  = "MSGXFORM_LOG_FORMAT"
	envWatch      = "MSGXFORM_WATCH"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a boolean or a default.
// Accepts "true", "1", "yes", "on" (case-insensitive) as true values.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}
