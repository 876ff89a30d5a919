package config

import (
	"os"
	"strings"
)

// Deployment environments accepted in APP_ENV
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// GetEnv retrieves an environment variable or returns a default value if not found
func GetEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// AppEnv returns APP_ENV lower-cased, defaulting to development
func AppEnv() string {
	return strings.ToLower(GetEnv("APP_ENV", EnvDevelopment))
}

// IsProduction reports whether the process runs with APP_ENV=production
func IsProduction() bool {
	return AppEnv() == EnvProduction
}

// ConfigPath returns the directory searched for config.yaml
func ConfigPath() string {
	return GetEnv("CONFIG_PATH", ".")
}
