package config

import "os"

const (
	appNameVar    = "APP_NAME"
	baseURLVar    = "PORTAL_API_URL"
	monitorURLVar = "PORTAL_MONITOR_URL"
	folderEnvVar  = "FOLDER"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Portal Session")
}

// GetBaseURL returns the base URL of the billing platform REST API
// (e.g. "https://api.billing.example.com"). All outbound calls are
// built relative to it.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

// GetMonitorURL returns the WebSocket endpoint for the live session monitor.
func (EnvVars) GetMonitorURL() string {
	return GetEnv(monitorURLVar, "ws://localhost:8080/ws/sessions")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
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
