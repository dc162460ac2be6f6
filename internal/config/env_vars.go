package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	apiBaseURLVar = "API_BASE_URL"
	appOriginVar  = "APP_ORIGIN"
	dataFolderVar = "FOLDER"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetAPIBaseURL() string
	GetAppOrigin() string
	GetDataFolder() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Portfolio Auth")
}

// GetAPIBaseURL returns the base URL of the backend REST API that issues and
// refreshes tokens (e.g., "https://api.example.com").
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8080")
}

// GetAppOrigin returns the origin of the application itself. Cross-context
// messages from the OAuth popup are only accepted from this origin.
func (EnvVars) GetAppOrigin() string {
	return GetEnv(appOriginVar, "http://localhost:3000")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(dataFolderVar, "./data")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
